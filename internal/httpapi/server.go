// Package httpapi exposes the engine over HTTP: workflow CRUD and
// publication, direct execution, the Timer Manager's control surface, the
// Webhook Registry's create/trigger pair, the dispatcher callback entry
// point, a WebSocket run/node event stream, and health/metrics endpoints.
package httpapi

import (
	"net/http"

	"github.com/flowmesh/engine/internal/dispatcher"
	"github.com/flowmesh/engine/internal/graphexec"
	"github.com/flowmesh/engine/internal/store"
	"github.com/flowmesh/engine/internal/timermgr"
	"github.com/flowmesh/engine/internal/webhookreg"
	"github.com/flowmesh/engine/internal/wsstream"
)

// Server wires every engine component behind a single http.ServeMux, in the
// method-prefixed-pattern style ("GET /api/v1/...") Go 1.22's ServeMux
// supports natively.
type Server struct {
	store      store.Store
	engine     *graphexec.Engine
	timers     *timermgr.Manager
	webhooks   *webhookreg.Registry
	dispatcher *dispatcher.Manager
	ws         *wsstream.Handler

	mux *http.ServeMux
}

// New builds a Server and registers its routes.
func New(
	st store.Store,
	engine *graphexec.Engine,
	timers *timermgr.Manager,
	webhooks *webhookreg.Registry,
	disp *dispatcher.Manager,
	ws *wsstream.Handler,
) *Server {
	s := &Server{
		store:      st,
		engine:     engine,
		timers:     timers,
		webhooks:   webhooks,
		dispatcher: disp,
		ws:         ws,
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/v1/workflows", s.handleListWorkflows)
	s.mux.HandleFunc("POST /api/v1/workflows", s.handleCreateWorkflow)
	s.mux.HandleFunc("GET /api/v1/workflows/{id}", s.handleGetWorkflow)
	s.mux.HandleFunc("PUT /api/v1/workflows/{id}", s.handleUpdateWorkflow)
	s.mux.HandleFunc("DELETE /api/v1/workflows/{id}", s.handleDeleteWorkflow)
	s.mux.HandleFunc("POST /api/v1/workflows/{id}/publish", s.handlePublish)
	s.mux.HandleFunc("POST /api/v1/workflows/{id}/unpublish", s.handleUnpublish)

	s.mux.HandleFunc("POST /api/v1/execute-workflow", s.handleExecuteWorkflow)
	s.mux.HandleFunc("POST /api/v1/node-status", s.handleNodeStatus)

	s.mux.HandleFunc("POST /api/v1/setup-timer", s.handleSetupTimer)
	s.mux.HandleFunc("GET /api/v1/timers", s.handleListTimers)
	s.mux.HandleFunc("POST /api/v1/timers/{id}/pause", s.handleTimerPause)
	s.mux.HandleFunc("POST /api/v1/timers/{id}/resume", s.handleTimerResume)
	s.mux.HandleFunc("POST /api/v1/timers/{id}/execute-now", s.handleTimerExecuteNow)
	s.mux.HandleFunc("DELETE /api/v1/timers/{id}", s.handleTimerDelete)

	s.mux.HandleFunc("POST /api/v1/webhooks/create", s.handleWebhookCreate)
	s.mux.HandleFunc("POST /api/v1/webhooks/{id}", s.handleWebhookTrigger)

	s.mux.HandleFunc("POST /api/v1/dispatcher/callback", s.handleDispatcherCallback)
	s.mux.HandleFunc("GET /api/v1/dispatcher/sessions/{id}", s.handleDispatcherSession)

	s.mux.HandleFunc("GET /api/v1/metrics", s.handleMetrics)

	if s.ws != nil {
		s.mux.Handle("GET /api/v1/executions/ws", s.ws)
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
}

// ServeHTTP implements http.Handler, running the middleware stack around
// the route mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	chain(s.mux, loggingMiddleware, recoveryMiddleware, corsMiddleware).ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.List(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
