package domain

import "context"

// WorkflowRunner is the callback the Graph Executor exposes to node
// executors that need to launch a sub-workflow (loop, dispatcher). Each
// invocation creates its own WorkflowRun; no state leaks between runs.
type WorkflowRunner interface {
	RunWorkflow(ctx context.Context, workflowID string, initialInput map[string]any) (ExecutionResult, error)
	// RunWorkflowFrom launches a sub-run starting at a specific node, used
	// by the Timer Manager and Webhook Registry's fire-and-forget launches.
	RunWorkflowFrom(ctx context.Context, workflowID, startNodeID string, initialInput map[string]any) (ExecutionResult, error)
}

// WorkflowFetcher is the read side of the Workflow Store that node
// executors and the Dispatcher need, kept narrow to avoid a dependency on
// the full store API.
type WorkflowFetcher interface {
	Get(ctx context.Context, id string) (*Workflow, error)
}
