// Package graphexec implements the Graph Executor: the breadth-first
// interpreter that walks a workflow's nodes and connections, threading data
// through a per-run result pool, handling if_else branching, GOTO cycles,
// join fan-in, and sub-workflow recursion.
package graphexec

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flowmesh/engine/internal/domain"
	"github.com/flowmesh/engine/internal/metrics"
	"github.com/flowmesh/engine/internal/nodeexec"
)

const defaultMaxGotoIterations = 10

// Config tunes engine-wide limits; per-node maxGotoIterations in an if_else
// node's own config still takes precedence when present.
type Config struct {
	NodeTimeout       time.Duration
	MaxGotoIterations int

	// Observer, if set, is notified as the run progresses. Used by the
	// WebSocket log stream; nil is a valid, silent default.
	Observer domain.RunObserver

	// Metrics, if set, records per-node and per-workflow execution counters
	// surfaced through the /api/v1/metrics endpoint; nil is a valid, silent
	// default.
	Metrics *metrics.MetricsCollector
}

// Engine is the Graph Executor. It implements domain.WorkflowRunner so
// node executors (loop, dispatcher) can launch sub-workflows through the
// same entry point used for top-level runs.
type Engine struct {
	registry *nodeexec.Registry
	fetcher  domain.WorkflowFetcher
	cfg      Config

	statusMu sync.Mutex
	status   map[string]domain.NodeResult
}

// New builds an Engine backed by the given executor registry and workflow
// store reader.
func New(registry *nodeexec.Registry, fetcher domain.WorkflowFetcher, cfg Config) *Engine {
	if cfg.MaxGotoIterations == 0 {
		cfg.MaxGotoIterations = defaultMaxGotoIterations
	}
	return &Engine{registry: registry, fetcher: fetcher, cfg: cfg, status: make(map[string]domain.NodeResult)}
}

// LatestNodeResults returns the most recently recorded result for each of
// the given node ids across any run, backing the node-status poll endpoint.
func (e *Engine) LatestNodeResults(nodeIDs []string) map[string]domain.NodeResult {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	out := make(map[string]domain.NodeResult, len(nodeIDs))
	for _, id := range nodeIDs {
		if r, ok := e.status[id]; ok {
			out[id] = r
		}
	}
	return out
}

// ClearNodeResults drops the recorded status for the given node ids, so a
// later poll only sees results produced after this call.
func (e *Engine) ClearNodeResults(nodeIDs []string) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	for _, id := range nodeIDs {
		delete(e.status, id)
	}
}

func (e *Engine) recordNodeResult(nodeID string, result domain.NodeResult) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	e.status[nodeID] = result
}

// Metrics returns the engine's metrics collector, or nil if none was
// configured.
func (e *Engine) Metrics() *metrics.MetricsCollector {
	return e.cfg.Metrics
}

// RunWorkflow implements domain.WorkflowRunner: it fetches the workflow and
// runs it from its natural start node.
func (e *Engine) RunWorkflow(ctx context.Context, workflowID string, initialInput map[string]any) (domain.ExecutionResult, error) {
	return e.run(ctx, workflowID, "", initialInput)
}

// RunWorkflowFrom implements domain.WorkflowRunner: it fetches the workflow
// and runs it starting at the named node, used by the Timer Manager and
// Webhook Registry.
func (e *Engine) RunWorkflowFrom(ctx context.Context, workflowID, startNodeID string, initialInput map[string]any) (domain.ExecutionResult, error) {
	return e.run(ctx, workflowID, startNodeID, initialInput)
}

func (e *Engine) run(ctx context.Context, workflowID, startNodeID string, initialInput map[string]any) (domain.ExecutionResult, error) {
	workflow, err := e.fetcher.Get(ctx, workflowID)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	return e.Execute(ctx, workflow, startNodeID, initialInput)
}

// workItem is one queue entry: the node to (re)consider and the upstream
// node whose completion enqueued it, used for join fan-in bookkeeping. The
// start node carries an empty sourceID.
type workItem struct {
	nodeID   string
	sourceID string
}

// Execute interprets one workflow graph to completion or first failure.
// Graph-level problems (bad start node, exhausted GOTO budget, a node
// executor's error) all surface as a failed ExecutionResult rather than a Go
// error; a Go error return is reserved for infrastructure failures the
// caller cannot recover from mid-run.
func (e *Engine) Execute(ctx context.Context, workflow *domain.Workflow, startNodeID string, initialInput map[string]any) (domain.ExecutionResult, error) {
	if err := workflow.Validate(); err != nil {
		return domain.ExecutionResult{Success: false, Error: err.Error()}, nil
	}

	start, err := resolveStartNode(workflow, startNodeID)
	if err != nil {
		return domain.ExecutionResult{Success: false, Error: err.Error()}, nil
	}

	run := domain.NewWorkflowRun(workflow.ID, initialInput, workflow.LabelToIDMap())
	queue := []workItem{{nodeID: start.ID}}
	executedAny := false
	runStart := time.Now()

	if e.cfg.Observer != nil {
		e.cfg.Observer.OnRunStarted(workflow.ID, run.RunID)
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if run.HasExecuted(item.nodeID) {
			continue
		}
		node, ok := workflow.NodeByID(item.nodeID)
		if !ok {
			continue
		}

		inputs, ready := e.prepareInputs(workflow, run, node, item, initialInput, executedAny)
		if !ready {
			continue
		}

		executor, ok := e.registry.Get(node.Type)
		if !ok {
			msg := fmt.Sprintf("no executor for node type %q", node.Type)
			run.Log(node.ID, domain.LogError, msg, nil)
			return failure(run, msg), nil
		}

		label := node.Label
		if label == "" {
			label = node.ID
		}
		run.Log(node.ID, domain.LogInfo, "executing node "+label, nil)
		log.Info().Str("workflow_id", workflow.ID).Str("node_id", node.ID).Str("node_type", node.Type).Msg("graphexec: executing node")
		if e.cfg.Observer != nil {
			e.cfg.Observer.OnNodeStarted(workflow.ID, run.RunID, node.ID, node.Type)
		}
		nodeStart := time.Now()

		execCtx := ctx
		var cancel context.CancelFunc
		if e.cfg.NodeTimeout > 0 {
			execCtx, cancel = context.WithTimeout(ctx, e.cfg.NodeTimeout)
		}
		result, execErr := executor.Execute(execCtx, node, workflow.LabelToIDMap(), inputs, run.ResultPool())
		if cancel != nil {
			cancel()
		}
		if execErr != nil {
			run.Log(node.ID, domain.LogError, execErr.Error(), nil)
			log.Error().Err(execErr).Str("workflow_id", workflow.ID).Str("node_id", node.ID).Msg("graphexec: node failed")
			if e.cfg.Observer != nil {
				e.cfg.Observer.OnNodeFailed(workflow.ID, run.RunID, node.ID, node.Type, execErr.Error(), time.Since(nodeStart))
				e.cfg.Observer.OnRunFailed(workflow.ID, run.RunID, execErr.Error(), time.Since(runStart))
			}
			if e.cfg.Metrics != nil {
				e.cfg.Metrics.RecordNodeExecution(node.ID, node.Type, label, time.Since(nodeStart), false, false)
				e.cfg.Metrics.RecordWorkflowExecution(workflow.ID, time.Since(runStart), false)
			}
			return failure(run, execErr.Error()), nil
		}
		if e.cfg.Observer != nil {
			e.cfg.Observer.OnNodeCompleted(workflow.ID, run.RunID, node.ID, node.Type, time.Since(nodeStart))
		}
		if e.cfg.Metrics != nil {
			e.cfg.Metrics.RecordNodeExecution(node.ID, node.Type, label, time.Since(nodeStart), true, false)
		}

		if dc, hasDC := inputs["dispatcher_context"]; hasDC {
			if _, already := result["dispatcher_context"]; !already {
				result["dispatcher_context"] = dc
			}
		}

		run.SetResult(node.ID, result)
		e.recordNodeResult(node.ID, result)
		executedAny = true
		run.Log(node.ID, domain.LogSuccess, "node "+label+" executed successfully", map[string]any(result))

		next, err := e.nextWorkItems(workflow, run, node, result)
		if err != nil {
			run.Log(node.ID, domain.LogError, err.Error(), nil)
			if e.cfg.Observer != nil {
				e.cfg.Observer.OnRunFailed(workflow.ID, run.RunID, err.Error(), time.Since(runStart))
			}
			if e.cfg.Metrics != nil {
				e.cfg.Metrics.RecordWorkflowExecution(workflow.ID, time.Since(runStart), false)
			}
			return failure(run, err.Error()), nil
		}
		queue = append(queue, next...)
	}

	if e.cfg.Observer != nil {
		e.cfg.Observer.OnRunCompleted(workflow.ID, run.RunID, time.Since(runStart))
	}
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.RecordWorkflowExecution(workflow.ID, time.Since(runStart), true)
	}
	return domain.ExecutionResult{Success: true, ResultPool: run.ResultPool(), Logs: run.Logs()}, nil
}

func failure(run *domain.WorkflowRun, message string) domain.ExecutionResult {
	return domain.ExecutionResult{
		Success:    false,
		Error:      message,
		ResultPool: run.ResultPool(),
		Logs:       run.Logs(),
	}
}

// prepareInputs composes the inputs mapping for a dequeued node and reports
// whether it is ready to execute now. A join node with two or more incoming
// edges is not ready until every expected source has reported.
func (e *Engine) prepareInputs(workflow *domain.Workflow, run *domain.WorkflowRun, node *domain.Node, item workItem, initialInput map[string]any, executedAny bool) (map[string]any, bool) {
	if node.Type == domain.NodeTypeJoin {
		incoming := workflow.IncomingTo(node.ID)
		if len(incoming) >= 2 {
			expected := make([]string, 0, len(incoming))
			for _, c := range incoming {
				expected = append(expected, c.Source)
			}
			run.JoinBuffer(node.ID, expected)

			if item.sourceID == "" {
				return nil, false
			}
			sourceResult, ok := run.Result(item.sourceID)
			if !ok {
				return nil, false
			}
			ready, received := run.RecordJoinArrival(node.ID, item.sourceID, sourceResult)
			if !ready {
				return nil, false
			}
			joined := make(map[string]any, len(received))
			for k, v := range received {
				joined[k] = v
			}
			return map[string]any{"inputs": joined}, true
		}
	}

	if !executedAny {
		return initialInput, true
	}
	return run.ResultPool(), true
}

// nextWorkItems determines which outbound edges fire after a node completes,
// applying if_else branch-label routing and GOTO bookkeeping.
func (e *Engine) nextWorkItems(workflow *domain.Workflow, run *domain.WorkflowRun, node *domain.Node, result domain.NodeResult) ([]workItem, error) {
	outgoing := workflow.OutgoingFrom(node.ID)

	if node.Type != domain.NodeTypeIfElse {
		var next []workItem
		for _, conn := range outgoing {
			if !run.HasExecuted(conn.Target) {
				next = append(next, workItem{nodeID: conn.Target, sourceID: conn.Source})
			}
		}
		return next, nil
	}

	branch, _ := result["branch"].(string)
	if branch == "" {
		branch = "false"
	}
	maxGoto := maxGotoIterations(node, e.cfg.MaxGotoIterations)

	var next []workItem
	for _, conn := range outgoing {
		label := conn.Label()
		if label == "" {
			label = "true"
		}
		isGoto := strings.Contains(label, ":goto")
		actualLabel := strings.SplitN(label, ":", 2)[0]
		if actualLabel != branch {
			continue
		}

		if !isGoto && run.HasExecuted(conn.Target) {
			continue
		}

		if isGoto {
			count := run.IncrementGoto(conn.Source, conn.Target)
			if count > maxGoto {
				return nil, &domain.GotoOverflowError{Source: conn.Source, Target: conn.Target, Limit: maxGoto}
			}
			log.Info().Str("source", conn.Source).Str("target", conn.Target).Int("iteration", count).Msg("graphexec: goto")
			run.EraseForGoto(conn.Source, conn.Target)
		}

		next = append(next, workItem{nodeID: conn.Target, sourceID: conn.Source})
	}
	return next, nil
}

func maxGotoIterations(node *domain.Node, fallback int) int {
	if node.Config == nil {
		return fallback
	}
	switch v := node.Config["maxGotoIterations"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

// resolveStartNode picks the node execution begins at: the caller's
// explicit choice, else a startable-type node with no incoming edge, else
// the first startable node in the graph.
func resolveStartNode(workflow *domain.Workflow, startNodeID string) (*domain.Node, error) {
	if startNodeID != "" {
		node, ok := workflow.NodeByID(startNodeID)
		if !ok {
			return nil, &domain.ValidationError{Field: "startNodeId", Message: "start node not found: " + startNodeID}
		}
		return node, nil
	}

	hasIncoming := make(map[string]bool, len(workflow.Connections))
	for _, c := range workflow.Connections {
		hasIncoming[c.Target] = true
	}

	var firstStartable *domain.Node
	for i := range workflow.Nodes {
		n := &workflow.Nodes[i]
		if !domain.StartableNodeTypes[n.Type] {
			continue
		}
		if firstStartable == nil {
			firstStartable = n
		}
		if !hasIncoming[n.ID] {
			return n, nil
		}
	}
	if firstStartable != nil {
		return firstStartable, nil
	}
	return nil, &domain.ValidationError{Field: "nodes", Message: "no start node found"}
}
