package dispatcher

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/flowmesh/engine/internal/domain"
	"github.com/flowmesh/engine/internal/llm"
	"github.com/flowmesh/engine/internal/llmjson"
)

// executeOrchestrator either resumes an in-flight session (when the input
// carries return_to_dispatcher) or plans and launches a new one.
func (m *Manager) executeOrchestrator(ctx context.Context, node *domain.Node, cfg *Config, labelToID map[string]string, input map[string]any, allResults map[string]domain.NodeResult) (domain.NodeResult, error) {
	table := m.tableFor(node.ID)

	if returning, _ := input["return_to_dispatcher"].(bool); returning {
		sessionID, _ := input["session_id"].(string)
		stepResult, _ := input["workflow_result"].(map[string]any)
		return toNodeResult(m.handleWorkflowReturn(ctx, table, sessionID, domain.NodeResult(stepResult)))
	}

	return toNodeResult(m.createNewSession(ctx, node.ID, table, cfg, labelToID, input, allResults))
}

func toNodeResult(result domain.ExecutionResult, err error) (domain.NodeResult, error) {
	if err != nil {
		return nil, err
	}
	return domain.NodeResult{
		"success": result.Success,
		"result":  result.ResultPool,
		"error":   result.Error,
	}, nil
}

// createNewSession builds a plan via the LLM, stores the session, and
// launches its first step.
func (m *Manager) createNewSession(ctx context.Context, dispatcherID string, table sessionTable, cfg *Config, labelToID map[string]string, input map[string]any, allResults map[string]domain.NodeResult) (domain.ExecutionResult, error) {
	queryTemplate := cfg.UserQueryTemplate
	if queryTemplate == "" {
		queryTemplate = "{{input.query}}"
	}
	userQuery := resolveTemplate(queryTemplate, labelToID, input, allResults)
	if userQuery == "" {
		return domain.ExecutionResult{}, &domain.ValidationError{Field: "userQueryTemplate", Message: "orchestrator: user query not found in input"}
	}

	plan, err := m.createExecutionPlan(ctx, cfg, userQuery)
	if err != nil {
		return domain.ExecutionResult{}, err
	}

	sessionID := newSessionID()
	session := &domain.DispatcherSession{
		SessionID:        sessionID,
		DispatcherID:     dispatcherID,
		Plan:             plan,
		CurrentStep:      0,
		InitialQuery:     userQuery,
		ExecutionHistory: nil,
		IsAgentMode:      cfg.IsAgentMode,
		DispatcherConfig: configToMap(cfg),
		CreatedAt:        now(),
	}
	table.Store(sessionID, session)

	if len(plan) == 0 {
		table.Delete(sessionID)
		return domain.ExecutionResult{}, &domain.ValidationError{Field: "plan", Message: "orchestrator: failed to produce a usable execution plan"}
	}

	first := plan[0]
	return m.launchByID(ctx, first.WorkflowID, map[string]any{
		"initial_query":     userQuery,
		"last_step_result":  map[string]any{},
		"execution_history": []domain.HistoryEntry{},
		"dispatcher_context": map[string]any{
			"session_id":    sessionID,
			"plan":          plan,
			"step":          0,
			"dispatcher_id": dispatcherID,
		},
	})
}

// handleWorkflowReturn advances a session after one of its plan steps
// reports back, re-planning first if the session runs in agent mode.
func (m *Manager) handleWorkflowReturn(ctx context.Context, table sessionTable, sessionID string, stepResult domain.NodeResult) (domain.ExecutionResult, error) {
	if sessionID == "" {
		return domain.ExecutionResult{}, &domain.SessionNotFoundError{SessionID: sessionID}
	}
	session, ok := table.Load(sessionID)
	if !ok {
		return domain.ExecutionResult{}, &domain.SessionNotFoundError{SessionID: sessionID}
	}

	if step, ok := session.CurrentPlanStep(); ok {
		session.ExecutionHistory = append(session.ExecutionHistory, domain.HistoryEntry{
			StepInfo:  step,
			Result:    stepResult,
			Timestamp: now(),
		})
	}

	if session.IsAgentMode {
		log.Info().Str("session_id", sessionID).Msg("dispatcher: agent mode, re-planning")
		if err := m.rePlan(ctx, session); err != nil {
			return domain.ExecutionResult{}, err
		}
		session.CurrentStep = 0
	} else {
		session.CurrentStep++
	}

	if session.Done() {
		log.Info().Str("session_id", sessionID).Msg("dispatcher: plan complete")
		history := session.ExecutionHistory
		table.Delete(sessionID)
		return domain.ExecutionResult{
			Success:    true,
			ResultPool: map[string]domain.NodeResult{"plan": {"history": history}},
		}, nil
	}

	next, _ := session.CurrentPlanStep()
	var lastResult domain.NodeResult
	if len(session.ExecutionHistory) > 0 {
		lastResult = session.ExecutionHistory[len(session.ExecutionHistory)-1].Result
	}

	return m.launchByID(ctx, next.WorkflowID, map[string]any{
		"initial_query":     session.InitialQuery,
		"execution_history": session.ExecutionHistory,
		"last_step_result":  lastResult,
		"dispatcher_context": map[string]any{
			"session_id":    sessionID,
			"plan":          session.Plan,
			"step":          session.CurrentStep,
			"dispatcher_id": session.DispatcherID,
		},
	})
}

// createExecutionPlan asks the LLM for a step-by-step plan over the
// dispatcher's configured available workflows.
func (m *Manager) createExecutionPlan(ctx context.Context, cfg *Config, userQuery string) ([]domain.PlanStep, error) {
	if len(cfg.AvailableWorkflows) == 0 {
		return nil, &domain.ValidationError{Field: "availableWorkflows", Message: "orchestrator: no available workflows configured for planning"}
	}
	if m.Chat == nil {
		return nil, &domain.ExternalServiceError{Service: "llm", Cause: fmt.Errorf("no chat client configured for planning")}
	}

	prompt := fmt.Sprintf(
		"User asks: %q\nAvailable workflows:\n%s\n\nBuild a step-by-step execution plan as a JSON array of "+
			"the form [{\"workflow_id\": \"id\", \"description\": \"desc\"}]. Reply with ONLY the JSON array, no extra text.",
		userQuery, describeWorkflows(cfg.AvailableWorkflows))

	text, err := m.Chat.ChatCompletion(ctx, []llm.Message{
		{Role: "system", Content: "You are a task planner. Build a plan from the available workflows."},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return nil, &domain.ExternalServiceError{Service: "llm", Cause: err}
	}

	return parsePlan(text)
}

// rePlan is the agent mode's "brain": it re-derives a full remaining plan
// from the session's history so far, replacing session.Plan in place.
func (m *Manager) rePlan(ctx context.Context, session *domain.DispatcherSession) error {
	cfg, err := mapToConfig(session.DispatcherConfig)
	if err != nil {
		return err
	}
	if len(cfg.AvailableWorkflows) == 0 {
		log.Warn().Str("session_id", session.SessionID).Msg("dispatcher: no available workflows for re-planning, aborting plan")
		session.Plan = nil
		return nil
	}
	if m.Chat == nil {
		return &domain.ExternalServiceError{Service: "llm", Cause: fmt.Errorf("no chat client configured for re-planning")}
	}

	var history string
	for i, entry := range session.ExecutionHistory {
		history += fmt.Sprintf("Step %d: executed workflow `%s` (%s)\nResult: %v\n\n",
			i+1, entry.StepInfo.WorkflowID, entry.StepInfo.Description, entry.Result)
	}
	if history == "" {
		history = "Nothing executed yet."
	}

	prompt := fmt.Sprintf(
		"=== Original task ===\n%s\n\n=== What has been done so far ===\n%s\n"+
			"=== Available tools (workflows) for the next step ===\n%s\n\n"+
			"Based on the task and history, decide the next step. Produce an UPDATED AND COMPLETE plan of the "+
			"remaining actions as a JSON array of the form [{\"workflow_id\": \"id\", \"description\": \"desc\"}].\n"+
			"- If the task is already solved, return an empty array [].\n"+
			"- Use only tools from the available list.\n"+
			"Reply with ONLY the JSON array, no extra text.",
		session.InitialQuery, history, describeWorkflows(cfg.AvailableWorkflows))

	text, err := m.Chat.ChatCompletion(ctx, []llm.Message{
		{Role: "system", Content: "You are an advanced AI agent that analyzes completed work and plans the next steps."},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return &domain.ExternalServiceError{Service: "llm", Cause: err}
	}

	plan, err := parsePlan(text)
	if err != nil {
		log.Error().Err(err).Str("session_id", session.SessionID).Msg("dispatcher: failed to parse re-plan response, aborting plan")
		session.Plan = nil
		return nil
	}
	session.Plan = plan
	return nil
}

func parsePlan(raw string) ([]domain.PlanStep, error) {
	parsed, err := llmjson.Parse(raw)
	if err != nil {
		return nil, &domain.ValidationError{Field: "plan", Message: "could not parse plan: " + err.Error()}
	}
	items, ok := parsed.([]any)
	if !ok {
		return nil, &domain.ValidationError{Field: "plan", Message: "plan must be a JSON array"}
	}
	plan := make([]domain.PlanStep, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, &domain.ValidationError{Field: "plan", Message: "each plan step must be an object"}
		}
		workflowID, _ := m["workflow_id"].(string)
		if workflowID == "" {
			return nil, &domain.ValidationError{Field: "plan", Message: "each plan step must contain workflow_id"}
		}
		description, _ := m["description"].(string)
		plan = append(plan, domain.PlanStep{WorkflowID: workflowID, Description: description})
	}
	return plan, nil
}

func configToMap(cfg *Config) map[string]any {
	workflows := make(map[string]any, len(cfg.AvailableWorkflows))
	for id, wf := range cfg.AvailableWorkflows {
		workflows[id] = map[string]any{"description": wf.Description}
	}
	return map[string]any{
		"availableWorkflows": workflows,
		"is_agent_mode":      cfg.IsAgentMode,
	}
}

func mapToConfig(m map[string]any) (*Config, error) {
	cfg := &Config{AvailableWorkflows: map[string]AvailableWorkflow{}}
	raw, ok := m["availableWorkflows"].(map[string]any)
	if ok {
		for id, v := range raw {
			if entry, ok := v.(map[string]any); ok {
				desc, _ := entry["description"].(string)
				cfg.AvailableWorkflows[id] = AvailableWorkflow{Description: desc}
			}
		}
	}
	if agent, ok := m["is_agent_mode"].(bool); ok {
		cfg.IsAgentMode = agent
	}
	return cfg, nil
}
