package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/engine/internal/domain"
)

func TestMemoryStore_UpsertPreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	wf := &domain.Workflow{ID: "wf1", Name: "wf1"}
	require.NoError(t, st.Upsert(ctx, wf))

	got, err := st.Get(ctx, "wf1")
	require.NoError(t, err)
	firstCreated := got.CreatedAt
	assert.Equal(t, int64(1), got.Revision)

	got.Name = "renamed"
	require.NoError(t, st.Upsert(ctx, got))

	updated, err := st.Get(ctx, "wf1")
	require.NoError(t, err)
	assert.Equal(t, firstCreated, updated.CreatedAt)
	assert.Equal(t, int64(2), updated.Revision)
	assert.Equal(t, "renamed", updated.Name)
}

func TestMemoryStore_GetMissing(t *testing.T) {
	st := NewMemoryStore()
	_, err := st.Get(context.Background(), "missing")
	require.Error(t, err)
	var notFound *domain.WorkflowNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestMemoryStore_SetStatusSyncsTimers(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	syncer := &fakeSyncer{}
	st.SetTimerSyncer(syncer)

	wf := &domain.Workflow{
		ID:   "wf1",
		Name: "wf1",
		Nodes: []domain.Node{
			{ID: "n1", Type: domain.NodeTypeTimer, Config: map[string]any{"interval": float64(5)}},
		},
	}
	require.NoError(t, st.Upsert(ctx, wf))

	_, err := st.SetStatus(ctx, "wf1", domain.StatusPublished)
	require.NoError(t, err)
	assert.Equal(t, 1, syncer.creates)

	_, err = st.SetStatus(ctx, "wf1", domain.StatusDraft)
	require.NoError(t, err)
	assert.Equal(t, 1, syncer.deletes)
}

func TestMemoryStore_ListWorkflows(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	require.NoError(t, st.Upsert(ctx, &domain.Workflow{ID: "a", Name: "a"}))
	require.NoError(t, st.Upsert(ctx, &domain.Workflow{ID: "b", Name: "b"}))

	all, err := st.ListWorkflows(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryStore_DeleteThenGet(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	require.NoError(t, st.Upsert(ctx, &domain.Workflow{ID: "a", Name: "a"}))
	require.NoError(t, st.Delete(ctx, "a"))

	_, err := st.Get(ctx, "a")
	assert.Error(t, err)
}

type fakeSyncer struct {
	creates int
	deletes int
}

func (f *fakeSyncer) Create(ctx context.Context, nodeID, workflowID string, intervalMinutes int) (domain.Timer, error) {
	f.creates++
	return domain.Timer{TimerID: domain.WorkflowTimerID(workflowID), NodeID: nodeID, WorkflowID: workflowID}, nil
}

func (f *fakeSyncer) Delete(timerID string) {
	f.deletes++
}
