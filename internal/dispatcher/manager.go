// Package dispatcher implements the two dispatcher node modes: a stateless
// Router that classifies a request into one of a configured set of
// sub-workflows, and an Orchestrator that plans a multi-step sequence of
// sub-workflow launches and resumes it as each step reports back.
package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"

	"github.com/flowmesh/engine/internal/domain"
	"github.com/flowmesh/engine/internal/llm"
	"github.com/flowmesh/engine/internal/nodeexec"
	"github.com/flowmesh/engine/internal/template"
)

// sessionTable is one dispatcher node's session_id -> session map.
type sessionTable = *xsync.MapOf[string, *domain.DispatcherSession]

// Manager owns every live orchestrator session, keyed first by the
// dispatcher node id and then by session id, so two dispatcher nodes never
// collide on a session id a caller happens to reuse.
type Manager struct {
	Chat   llm.ChatClient
	Runner domain.WorkflowRunner

	sessions *xsync.MapOf[string, sessionTable]
}

// NewManager builds a Manager ready to serve dispatcher nodes.
func NewManager(chat llm.ChatClient, runner domain.WorkflowRunner) *Manager {
	return &Manager{
		Chat:     chat,
		Runner:   runner,
		sessions: xsync.NewMapOf[string, sessionTable](),
	}
}

func (m *Manager) tableFor(dispatcherID string) sessionTable {
	table, _ := m.sessions.LoadOrCompute(dispatcherID, func() sessionTable {
		return xsync.NewMapOf[string, *domain.DispatcherSession]()
	})
	return table
}

// ProcessCallback resumes whichever session the caller's session_id belongs
// to, searching every dispatcher node's table. Used by the dispatcher
// callback HTTP endpoint, which has no node context of its own.
func (m *Manager) ProcessCallback(ctx context.Context, sessionID string, stepResult domain.NodeResult) (domain.ExecutionResult, error) {
	var table sessionTable
	m.sessions.Range(func(_ string, t sessionTable) bool {
		if _, ok := t.Load(sessionID); ok {
			table = t
			return false
		}
		return true
	})
	if table == nil {
		return domain.ExecutionResult{}, &domain.SessionNotFoundError{SessionID: sessionID}
	}
	return m.handleWorkflowReturn(ctx, table, sessionID, stepResult)
}

// GetSession searches every dispatcher node's table for a live orchestrator
// session, the same O(D) scan ProcessCallback performs, used by the
// dispatcher session inspection endpoint.
func (m *Manager) GetSession(sessionID string) (*domain.DispatcherSession, bool) {
	var found *domain.DispatcherSession
	m.sessions.Range(func(_ string, t sessionTable) bool {
		if s, ok := t.Load(sessionID); ok {
			found = s
			return false
		}
		return true
	})
	return found, found != nil
}

// Type implements nodeexec.Executor.
func (m *Manager) Type() string { return domain.NodeTypeDispatcher }

// Execute implements nodeexec.Executor, dispatching to the configured mode.
func (m *Manager) Execute(ctx context.Context, node *domain.Node, labelToID map[string]string, input map[string]any, allResults map[string]domain.NodeResult) (domain.NodeResult, error) {
	cfg, err := nodeexec.ParseConfig[Config](node.Config)
	if err != nil {
		return nil, &domain.ValidationError{Field: "config", Message: err.Error()}
	}
	if cfg.DispatcherType == "" {
		cfg.DispatcherType = KindRouter
	}

	log.Info().Str("node_id", node.ID).Str("mode", string(cfg.DispatcherType)).Msg("dispatcher: executing")

	switch cfg.DispatcherType {
	case KindRouter:
		return m.executeRouter(ctx, node, cfg, labelToID, input, allResults)
	case KindOrchestrator:
		return m.executeOrchestrator(ctx, node, cfg, labelToID, input, allResults)
	default:
		return nil, &domain.ValidationError{Field: "dispatcherType", Message: fmt.Sprintf("unknown dispatcher type %q", cfg.DispatcherType)}
	}
}

func resolveTemplate(tmpl string, labelToID map[string]string, input map[string]any, allResults map[string]domain.NodeResult) string {
	src := template.Source{
		InitialInput: input,
		LabelToID:    labelToID,
		Lookup:       func(id string) (domain.NodeResult, bool) { r, ok := allResults[id]; return r, ok },
	}
	return strings.TrimSpace(template.Resolve(tmpl, src, nil))
}

func (m *Manager) launchByID(ctx context.Context, workflowID string, input map[string]any) (domain.ExecutionResult, error) {
	result, err := m.Runner.RunWorkflow(ctx, workflowID, input)
	if err != nil {
		return domain.ExecutionResult{}, &domain.ExternalServiceError{Service: "sub-workflow " + workflowID, Cause: err}
	}
	return result, nil
}

func describeWorkflows(workflows map[string]AvailableWorkflow) string {
	var b strings.Builder
	for id, wf := range workflows {
		desc := wf.Description
		if desc == "" {
			desc = "no description"
		}
		fmt.Fprintf(&b, "- %s: %s\n", id, desc)
	}
	return strings.TrimRight(b.String(), "\n")
}

func newSessionID() string { return uuid.NewString() }

func now() time.Time { return time.Now() }
