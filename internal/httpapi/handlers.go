package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/flowmesh/engine/internal/domain"
)

// createWorkflowRequest is the body for POST /api/v1/workflows.
type createWorkflowRequest struct {
	Name        string              `json:"name"`
	Nodes       []domain.Node       `json:"nodes"`
	Connections []domain.Connection `json:"connections"`
}

// updateWorkflowRequest is the body for PUT /api/v1/workflows/{id}.
type updateWorkflowRequest struct {
	Nodes       []domain.Node       `json:"nodes"`
	Connections []domain.Connection `json:"connections"`
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": summaries})
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wf, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := domain.SlugifyWorkflowID(req.Name)
	if id == "" {
		writeError(w, http.StatusBadRequest, "workflow name must contain at least one alphanumeric character")
		return
	}

	if _, err := s.store.Get(r.Context(), id); err == nil {
		writeDomainError(w, &domain.WorkflowExistsError{ID: id})
		return
	}

	wf := &domain.Workflow{
		ID:          id,
		Name:        req.Name,
		Nodes:       req.Nodes,
		Connections: req.Connections,
		Status:      domain.StatusDraft,
	}
	if err := wf.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.store.Upsert(r.Context(), wf); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"workflow_id": wf.ID, "name": wf.Name})
}

func (s *Server) handleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req updateWorkflowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	existing.Nodes = req.Nodes
	existing.Connections = req.Connections
	if err := existing.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.store.Upsert(r.Context(), existing); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	s.setStatus(w, r, domain.StatusPublished)
}

func (s *Server) handleUnpublish(w http.ResponseWriter, r *http.Request) {
	s.setStatus(w, r, domain.StatusDraft)
}

func (s *Server) setStatus(w http.ResponseWriter, r *http.Request, status domain.Status) {
	id := r.PathValue("id")
	wf, err := s.store.SetStatus(r.Context(), id, status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// executeWorkflowRequest is the body for POST /api/v1/execute-workflow.
type executeWorkflowRequest struct {
	WorkflowID   string         `json:"workflow_id"`
	StartNodeID  string         `json:"start_node_id,omitempty"`
	InitialInput map[string]any `json:"initial_input"`
}

func (s *Server) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	var req executeWorkflowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.WorkflowID == "" {
		writeError(w, http.StatusBadRequest, "workflow_id is required")
		return
	}

	var (
		result domain.ExecutionResult
		err    error
	)
	if req.StartNodeID != "" {
		result, err = s.engine.RunWorkflowFrom(r.Context(), req.WorkflowID, req.StartNodeID, req.InitialInput)
	} else {
		result, err = s.engine.RunWorkflow(r.Context(), req.WorkflowID, req.InitialInput)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleNodeStatus(w http.ResponseWriter, r *http.Request) {
	var nodeIDs []string
	if err := decodeJSON(r, &nodeIDs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	results := s.engine.LatestNodeResults(nodeIDs)
	s.engine.ClearNodeResults(nodeIDs)
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// setupTimerRequest is the body for POST /api/v1/setup-timer.
type setupTimerRequest struct {
	Node       domain.Node `json:"node"`
	WorkflowID string      `json:"workflow_id"`
}

func (s *Server) handleSetupTimer(w http.ResponseWriter, r *http.Request) {
	var req setupTimerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wf, err := s.store.Get(r.Context(), req.WorkflowID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if wf.Status != domain.StatusPublished {
		writeDomainError(w, &domain.WorkflowUnpublishedError{ID: req.WorkflowID})
		return
	}

	interval := 5
	if v, ok := req.Node.Config["interval"]; ok {
		switch n := v.(type) {
		case float64:
			interval = int(n)
		case int:
			interval = n
		}
	}

	timer, err := s.timers.Create(r.Context(), req.Node.ID, req.WorkflowID, interval)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, timer)
}

func (s *Server) handleListTimers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"timers": s.timers.List()})
}

func (s *Server) handleTimerPause(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.timers.Pause(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleTimerResume(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	timer, err := s.timers.Resume(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, timer)
}

func (s *Server) handleTimerExecuteNow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	result, err := s.timers.ExecuteNow(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTimerDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.timers.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}

// webhookCreateRequest is the body for POST /api/v1/webhooks/create.
type webhookCreateRequest struct {
	WorkflowID string `json:"workflow_id"`
	Name       string `json:"name"`
}

func (s *Server) handleWebhookCreate(w http.ResponseWriter, r *http.Request) {
	var req webhookCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.WorkflowID == "" {
		writeError(w, http.StatusBadRequest, "workflow_id is required")
		return
	}
	webhookID, url := s.webhooks.Create(req.WorkflowID, req.Name)
	writeJSON(w, http.StatusOK, map[string]string{"webhook_id": webhookID, "url": url})
}

func (s *Server) handleWebhookTrigger(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body map[string]any
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}
	query := make(map[string]string, len(r.URL.Query()))
	for k := range r.URL.Query() {
		query[k] = r.URL.Query().Get(k)
	}

	result, err := s.webhooks.Trigger(r.Context(), id, body, headers, query)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, result.Status, map[string]string{"workflow_id": result.WorkflowID, "status": "accepted"})
}

// dispatcherCallbackRequest is the body for POST /api/v1/dispatcher/callback.
type dispatcherCallbackRequest struct {
	SessionID  string            `json:"session_id"`
	StepResult domain.NodeResult `json:"step_result"`
}

func (s *Server) handleDispatcherCallback(w http.ResponseWriter, r *http.Request) {
	var req dispatcherCallbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.dispatcher.ProcessCallback(r.Context(), req.SessionID, req.StepResult)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDispatcherSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	session, ok := s.dispatcher.GetSession(id)
	if !ok {
		writeDomainError(w, &domain.SessionNotFoundError{SessionID: id})
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.engine.Metrics() == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "metrics collection disabled"})
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Metrics().Snapshot())
}
