package domain

import "time"

// TimerStatus mirrors the lifecycle a Timer Manager entry moves through.
type TimerStatus string

const (
	TimerActive TimerStatus = "active"
	TimerPaused TimerStatus = "paused"
	TimerError  TimerStatus = "error"
)

// Timer is the process-local bookkeeping record for one scheduled workflow
// launch. It never touches durable storage directly.
type Timer struct {
	TimerID          string      `json:"timer_id"`
	NodeID           string      `json:"node_id"`
	WorkflowID       string      `json:"workflow_id"`
	IntervalMinutes  int         `json:"interval_minutes"`
	Status           TimerStatus `json:"status"`
	NextExecution    time.Time   `json:"next_execution"`
	IsExecuting      bool        `json:"is_executing"`
}

// WorkflowTimerID derives the canonical, idempotent timer id for a
// workflow's single timer node.
func WorkflowTimerID(workflowID string) string {
	return "workflow_timer_" + workflowID
}
