package domain

import "time"

// PlanStep is one entry of an orchestrator's multi-step plan.
type PlanStep struct {
	WorkflowID  string `json:"workflow_id"`
	Description string `json:"description,omitempty"`
}

// HistoryEntry records one completed plan step.
type HistoryEntry struct {
	StepInfo  PlanStep   `json:"step_info"`
	Result    NodeResult `json:"result"`
	Timestamp time.Time  `json:"timestamp"`
}

// DispatcherSession is the orchestrator's per-request state: plan,
// progress, and history. Process-local; loss on restart is acceptable.
type DispatcherSession struct {
	SessionID        string         `json:"session_id"`
	DispatcherID     string         `json:"dispatcher_id"`
	Plan             []PlanStep     `json:"plan"`
	CurrentStep      int            `json:"current_step"`
	InitialQuery     string         `json:"initial_query"`
	ExecutionHistory []HistoryEntry `json:"execution_history"`
	IsAgentMode      bool           `json:"is_agent_mode"`
	DispatcherConfig map[string]any `json:"dispatcher_config"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Done reports whether the session has executed every step in its plan.
func (s *DispatcherSession) Done() bool {
	return s.CurrentStep >= len(s.Plan)
}

// CurrentPlanStep returns the step the session is presently on.
func (s *DispatcherSession) CurrentPlanStep() (PlanStep, bool) {
	if s.Done() {
		return PlanStep{}, false
	}
	return s.Plan[s.CurrentStep], true
}
