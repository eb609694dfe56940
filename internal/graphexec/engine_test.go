package graphexec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/engine/internal/domain"
	"github.com/flowmesh/engine/internal/nodeexec"
)

// echoExecutor marks itself executed and optionally sets a branch label,
// standing in for the node types the engine doesn't itself interpret.
type echoExecutor struct {
	nodeType string
	branch   string
}

func (e *echoExecutor) Type() string { return e.nodeType }

func (e *echoExecutor) Execute(_ context.Context, node *domain.Node, _ map[string]string, input map[string]any, _ map[string]domain.NodeResult) (domain.NodeResult, error) {
	out := domain.NodeResult{"success": true, "node_id": node.ID}
	if e.branch != "" {
		out["branch"] = e.branch
	}
	return out, nil
}

type fakeFetcher struct {
	workflows map[string]*domain.Workflow
}

func (f *fakeFetcher) Get(_ context.Context, id string) (*domain.Workflow, error) {
	wf, ok := f.workflows[id]
	if !ok {
		return nil, &domain.WorkflowNotFoundError{ID: id}
	}
	return wf, nil
}

func newRegistry(executors ...nodeexec.Executor) *nodeexec.Registry {
	r := nodeexec.NewRegistry()
	for _, e := range executors {
		r.Add(e)
	}
	return r
}

func TestEngine_IfElseRoutesByBranch(t *testing.T) {
	registry := newRegistry(
		&echoExecutor{nodeType: "start"},
		&echoExecutor{nodeType: domain.NodeTypeIfElse, branch: "true"},
		&echoExecutor{nodeType: "on_true"},
		&echoExecutor{nodeType: "on_false"},
	)
	wf := &domain.Workflow{
		ID: "wf1",
		Nodes: []domain.Node{
			{ID: "start", Type: "start"},
			{ID: "cond", Type: domain.NodeTypeIfElse},
			{ID: "yes", Type: "on_true"},
			{ID: "no", Type: "on_false"},
		},
		Connections: []domain.Connection{
			{ID: "c1", Source: "start", Target: "cond"},
			{ID: "c2", Source: "cond", Target: "yes", Data: &domain.ConnectionData{Label: "true"}},
			{ID: "c3", Source: "cond", Target: "no", Data: &domain.ConnectionData{Label: "false"}},
		},
	}

	engine := New(registry, &fakeFetcher{}, Config{})
	result, err := engine.Execute(context.Background(), wf, "start", map[string]any{})
	require.NoError(t, err)
	require.True(t, result.Success)

	_, yesExecuted := result.ResultPool["yes"]
	_, noExecuted := result.ResultPool["no"]
	assert.True(t, yesExecuted)
	assert.False(t, noExecuted)
}

func TestEngine_GotoLoopsUntilOverflow(t *testing.T) {
	registry := newRegistry(
		&echoExecutor{nodeType: "start"},
		&echoExecutor{nodeType: domain.NodeTypeIfElse, branch: "true"},
	)
	wf := &domain.Workflow{
		ID: "wf1",
		Nodes: []domain.Node{
			{ID: "start", Type: "start"},
			{ID: "cond", Type: domain.NodeTypeIfElse},
		},
		Connections: []domain.Connection{
			{ID: "c1", Source: "start", Target: "cond"},
			{ID: "c2", Source: "cond", Target: "cond", Data: &domain.ConnectionData{Label: "true:goto"}},
		},
	}

	engine := New(registry, &fakeFetcher{}, Config{MaxGotoIterations: 3})
	result, err := engine.Execute(context.Background(), wf, "start", map[string]any{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "goto")
}

func TestEngine_JoinWaitsForAllSources(t *testing.T) {
	registry := newRegistry(
		&echoExecutor{nodeType: "start"},
		&echoExecutor{nodeType: "branchA"},
		&echoExecutor{nodeType: "branchB"},
		&nodeexec.JoinExecutor{},
	)
	wf := &domain.Workflow{
		ID: "wf1",
		Nodes: []domain.Node{
			{ID: "start", Type: "start"},
			{ID: "a", Type: "branchA"},
			{ID: "b", Type: "branchB"},
			{ID: "merge", Type: domain.NodeTypeJoin, Config: map[string]any{}},
		},
		Connections: []domain.Connection{
			{ID: "c1", Source: "start", Target: "a"},
			{ID: "c2", Source: "start", Target: "b"},
			{ID: "c3", Source: "a", Target: "merge"},
			{ID: "c4", Source: "b", Target: "merge"},
		},
	}

	engine := New(registry, &fakeFetcher{}, Config{})
	result, err := engine.Execute(context.Background(), wf, "start", map[string]any{})
	require.NoError(t, err)
	require.True(t, result.Success)

	mergeResult, ok := result.ResultPool["merge"]
	require.True(t, ok)
	assert.True(t, mergeResult.Success())
}

func TestEngine_UnknownStartNodeFails(t *testing.T) {
	registry := newRegistry()
	wf := &domain.Workflow{ID: "wf1", Nodes: []domain.Node{{ID: "start", Type: "start"}}}

	engine := New(registry, &fakeFetcher{}, Config{})
	result, err := engine.Execute(context.Background(), wf, "missing", map[string]any{})
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestEngine_LatestNodeResultsPollAndClear(t *testing.T) {
	registry := newRegistry(&echoExecutor{nodeType: "start"})
	wf := &domain.Workflow{
		ID:    "wf1",
		Nodes: []domain.Node{{ID: "start", Type: "start"}},
	}

	engine := New(registry, &fakeFetcher{}, Config{})
	_, err := engine.Execute(context.Background(), wf, "start", map[string]any{})
	require.NoError(t, err)

	results := engine.LatestNodeResults([]string{"start"})
	require.Contains(t, results, "start")

	engine.ClearNodeResults([]string{"start"})
	results = engine.LatestNodeResults([]string{"start"})
	assert.NotContains(t, results, "start")
}
