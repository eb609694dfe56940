package domain

import "time"

// RunObserver receives notifications as the Graph Executor advances a run.
// It exists so the WebSocket log stream can watch execution without the
// executor depending on transport concerns; a nil RunObserver is a valid,
// silent no-op and callers must check for it before invoking.
type RunObserver interface {
	OnRunStarted(workflowID, runID string)
	OnRunCompleted(workflowID, runID string, duration time.Duration)
	OnRunFailed(workflowID, runID, errMsg string, duration time.Duration)
	OnNodeStarted(workflowID, runID, nodeID, nodeType string)
	OnNodeCompleted(workflowID, runID, nodeID, nodeType string, duration time.Duration)
	OnNodeFailed(workflowID, runID, nodeID, nodeType, errMsg string, duration time.Duration)
}
