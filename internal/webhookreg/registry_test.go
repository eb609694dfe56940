package webhookreg

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/engine/internal/domain"
)

type fakeLister struct {
	workflows []domain.Workflow
	err       error
}

func (f *fakeLister) ListWorkflows(ctx context.Context) ([]domain.Workflow, error) {
	return f.workflows, f.err
}

type fakeRunner struct {
	calls chan string
}

func newFakeRunner() *fakeRunner { return &fakeRunner{calls: make(chan string, 8)} }

func (f *fakeRunner) RunWorkflow(ctx context.Context, workflowID string, initialInput map[string]any) (domain.ExecutionResult, error) {
	return domain.ExecutionResult{Success: true}, nil
}

func (f *fakeRunner) RunWorkflowFrom(ctx context.Context, workflowID, startNodeID string, initialInput map[string]any) (domain.ExecutionResult, error) {
	f.calls <- workflowID + ":" + startNodeID
	return domain.ExecutionResult{Success: true}, nil
}

func webhookTriggerWorkflow(id, webhookID, nodeID string, status domain.Status) domain.Workflow {
	return domain.Workflow{
		ID:     id,
		Name:   id,
		Status: status,
		Nodes: []domain.Node{
			{ID: nodeID, Type: domain.NodeTypeWebhookTrigger, Config: map[string]any{"webhookId": webhookID}},
		},
	}
}

func TestRegistry_Create(t *testing.T) {
	reg := New(&fakeLister{}, newFakeRunner(), "https://engine.example.com")
	id, url := reg.Create("wf1", "orders")

	assert.NotEmpty(t, id)
	assert.Contains(t, url, "https://engine.example.com/api/v1/webhooks/"+id)
	assert.Contains(t, url, "?t=")
}

func TestRegistry_TriggerFiresMatchedPublishedWorkflow(t *testing.T) {
	runner := newFakeRunner()
	lister := &fakeLister{workflows: []domain.Workflow{
		webhookTriggerWorkflow("wf1", "hook-1", "n1", domain.StatusPublished),
	}}
	reg := New(lister, runner, "")

	result, err := reg.Trigger(context.Background(), "hook-1", map[string]any{"x": 1}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 202, result.Status)
	assert.Equal(t, "wf1", result.WorkflowID)

	select {
	case call := <-runner.calls:
		assert.Equal(t, "wf1:n1", call)
	case <-time.After(time.Second):
		t.Fatal("background run never launched")
	}
}

func TestRegistry_TriggerUnpublishedReturns403(t *testing.T) {
	lister := &fakeLister{workflows: []domain.Workflow{
		webhookTriggerWorkflow("wf1", "hook-1", "n1", domain.StatusDraft),
	}}
	reg := New(lister, newFakeRunner(), "")

	result, err := reg.Trigger(context.Background(), "hook-1", nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, 403, result.Status)
	var unpublished *domain.WorkflowUnpublishedError
	assert.ErrorAs(t, err, &unpublished)
}

func TestRegistry_TriggerNoMatchReturns404(t *testing.T) {
	reg := New(&fakeLister{}, newFakeRunner(), "")

	result, err := reg.Trigger(context.Background(), "hook-missing", nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, 404, result.Status)
	var notFound *domain.WebhookNotFoundError
	assert.ErrorAs(t, err, &notFound)
}
