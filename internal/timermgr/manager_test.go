package timermgr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/engine/internal/domain"
)

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

type fakeRunner struct {
	calls chan string
}

func newFakeRunner() *fakeRunner { return &fakeRunner{calls: make(chan string, 8)} }

func (f *fakeRunner) RunWorkflow(_ context.Context, workflowID string, _ map[string]any) (domain.ExecutionResult, error) {
	return domain.ExecutionResult{Success: true}, nil
}

func (f *fakeRunner) RunWorkflowFrom(_ context.Context, workflowID, startNodeID string, _ map[string]any) (domain.ExecutionResult, error) {
	f.calls <- workflowID + ":" + startNodeID
	return domain.ExecutionResult{Success: true}, nil
}

func TestManager_CreateRefusesUnpublishedWorkflow(t *testing.T) {
	fetcher := &fakeFetcher{workflows: map[string]*domain.Workflow{
		"wf1": {ID: "wf1", Status: domain.StatusDraft},
	}}
	mgr := New(newFakeRunner(), fetcher)

	_, err := mgr.Create(context.Background(), "n1", "wf1", 5)
	require.Error(t, err)
	var unpublished *domain.WorkflowUnpublishedError
	require.ErrorAs(t, err, &unpublished)
	assert.Empty(t, mgr.List())
}

func TestManager_CreatePublishedWorkflowIsIdempotent(t *testing.T) {
	fetcher := &fakeFetcher{workflows: map[string]*domain.Workflow{
		"wf1": {ID: "wf1", Status: domain.StatusPublished},
	}}
	mgr := New(newFakeRunner(), fetcher)

	first, err := mgr.Create(context.Background(), "n1", "wf1", 5)
	require.NoError(t, err)
	second, err := mgr.Create(context.Background(), "n1", "wf1", 10)
	require.NoError(t, err)

	assert.Equal(t, first.TimerID, second.TimerID)
	assert.Len(t, mgr.List(), 1)
	assert.Equal(t, 10, second.IntervalMinutes)
}

func TestManager_PauseResumeExecuteNow(t *testing.T) {
	runner := newFakeRunner()
	fetcher := &fakeFetcher{workflows: map[string]*domain.Workflow{
		"wf1": {ID: "wf1", Status: domain.StatusPublished},
	}}
	mgr := New(runner, fetcher)

	timer, err := mgr.Create(context.Background(), "n1", "wf1", 5)
	require.NoError(t, err)

	require.NoError(t, mgr.Pause(timer.TimerID))
	paused, ok := mgr.Get(timer.TimerID)
	require.True(t, ok)
	assert.Equal(t, domain.TimerPaused, paused.Status)

	resumed, err := mgr.Resume(timer.TimerID)
	require.NoError(t, err)
	assert.Equal(t, domain.TimerActive, resumed.Status)

	_, err = mgr.ExecuteNow(context.Background(), timer.TimerID)
	require.NoError(t, err)
	assert.Equal(t, "wf1:n1", <-runner.calls)
}

func TestManager_DeleteForgetsTimer(t *testing.T) {
	fetcher := &fakeFetcher{workflows: map[string]*domain.Workflow{
		"wf1": {ID: "wf1", Status: domain.StatusPublished},
	}}
	mgr := New(newFakeRunner(), fetcher)

	timer, err := mgr.Create(context.Background(), "n1", "wf1", 5)
	require.NoError(t, err)

	mgr.Delete(timer.TimerID)
	_, ok := mgr.Get(timer.TimerID)
	assert.False(t, ok)
}

func TestManager_UnknownTimerOperationsError(t *testing.T) {
	mgr := New(newFakeRunner(), &fakeFetcher{workflows: map[string]*domain.Workflow{}})

	assert.Error(t, mgr.Pause("missing"))
	_, err := mgr.Resume("missing")
	assert.Error(t, err)
	_, err = mgr.ExecuteNow(context.Background(), "missing")
	assert.Error(t, err)
}
