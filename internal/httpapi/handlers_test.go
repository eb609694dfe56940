package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/engine/internal/dispatcher"
	"github.com/flowmesh/engine/internal/domain"
	"github.com/flowmesh/engine/internal/store"
)

type fakeStore struct {
	workflows map[string]*domain.Workflow
}

func newFakeStore() *fakeStore {
	return &fakeStore{workflows: make(map[string]*domain.Workflow)}
}

func (f *fakeStore) List(ctx context.Context) ([]store.Summary, error) {
	out := make([]store.Summary, 0, len(f.workflows))
	for _, wf := range f.workflows {
		out = append(out, store.Summary{ID: wf.ID, Name: wf.Name, Status: wf.Status, UpdatedAt: wf.UpdatedAt})
	}
	return out, nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (*domain.Workflow, error) {
	wf, ok := f.workflows[id]
	if !ok {
		return nil, &domain.WorkflowNotFoundError{ID: id}
	}
	return wf, nil
}

func (f *fakeStore) Upsert(ctx context.Context, wf *domain.Workflow) error {
	f.workflows[wf.ID] = wf
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	delete(f.workflows, id)
	return nil
}

func (f *fakeStore) SetStatus(ctx context.Context, id string, status domain.Status) (*domain.Workflow, error) {
	wf, ok := f.workflows[id]
	if !ok {
		return nil, &domain.WorkflowNotFoundError{ID: id}
	}
	wf.Status = status
	return wf, nil
}

func (f *fakeStore) SetTimerSyncer(syncer store.TimerSyncer) {}

func (f *fakeStore) ListWorkflows(ctx context.Context) ([]domain.Workflow, error) {
	out := make([]domain.Workflow, 0, len(f.workflows))
	for _, wf := range f.workflows {
		out = append(out, *wf)
	}
	return out, nil
}

func newTestServer(st *fakeStore) *Server {
	return &Server{store: st, mux: http.NewServeMux()}
}

func TestHandleCreateWorkflow(t *testing.T) {
	st := newFakeStore()
	s := newTestServer(st)
	s.routes()

	body := `{"name":"Order Intake","nodes":[],"connections":[]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "order_intake", resp["workflow_id"])
}

func TestHandleCreateWorkflow_DuplicateReturns409(t *testing.T) {
	st := newFakeStore()
	st.workflows["dup"] = &domain.Workflow{ID: "dup", Name: "dup"}
	s := newTestServer(st)
	s.routes()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows", strings.NewReader(`{"name":"dup"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleGetWorkflow_NotFound(t *testing.T) {
	s := newTestServer(newFakeStore())
	s.routes()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows/missing", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlePublishUnpublish(t *testing.T) {
	st := newFakeStore()
	st.workflows["wf1"] = &domain.Workflow{ID: "wf1", Name: "wf1", Status: domain.StatusDraft}
	s := newTestServer(st)
	s.routes()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows/wf1/publish", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusPublished, st.workflows["wf1"].Status)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/workflows/wf1/unpublish", nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusDraft, st.workflows["wf1"].Status)
}

func TestHandleDeleteWorkflow(t *testing.T) {
	st := newFakeStore()
	st.workflows["wf1"] = &domain.Workflow{ID: "wf1", Name: "wf1"}
	s := newTestServer(st)
	s.routes()

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/workflows/wf1", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok := st.workflows["wf1"]
	assert.False(t, ok)
}

func TestHandleDispatcherSession_NotFound(t *testing.T) {
	s := newTestServer(newFakeStore())
	s.dispatcher = dispatcher.NewManager(nil, nil)
	s.routes()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dispatcher/sessions/missing", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(newFakeStore())
	s.routes()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
