package store

import (
	"context"
	"sync"
	"time"

	"github.com/flowmesh/engine/internal/domain"
)

// MemoryStore is a process-local Store, used for tests and local runs where
// no Postgres is available. Mutations are serialized by a single mutex;
// last-writer-wins on concurrent upserts to the same id, which spec
// tolerates.
type MemoryStore struct {
	mu        sync.Mutex
	workflows map[string]*domain.Workflow
	syncer    TimerSyncer
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{workflows: make(map[string]*domain.Workflow)}
}

// SetTimerSyncer wires the Timer Manager in after construction, breaking
// what would otherwise be an init-order cycle between store and timermgr.
func (s *MemoryStore) SetTimerSyncer(syncer TimerSyncer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncer = syncer
}

func clone(wf *domain.Workflow) *domain.Workflow {
	cp := *wf
	cp.Nodes = append([]domain.Node(nil), wf.Nodes...)
	cp.Connections = append([]domain.Connection(nil), wf.Connections...)
	return &cp
}

func (s *MemoryStore) List(_ context.Context) ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Summary, 0, len(s.workflows))
	for _, wf := range s.workflows {
		out = append(out, Summary{ID: wf.ID, Name: wf.Name, Status: wf.Status, UpdatedAt: wf.UpdatedAt})
	}
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, &domain.WorkflowNotFoundError{ID: id}
	}
	return clone(wf), nil
}

// Upsert writes wf atomically, preserving created_at across an update and
// always stamping updated_at.
func (s *MemoryStore) Upsert(_ context.Context, wf *domain.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if existing, ok := s.workflows[wf.ID]; ok {
		wf.CreatedAt = existing.CreatedAt
		wf.Revision = existing.Revision + 1
		wf.Status = existing.Status
	} else {
		wf.CreatedAt = now
		wf.Revision = 1
		if wf.Status == "" {
			wf.Status = domain.StatusDraft
		}
	}
	wf.UpdatedAt = now
	s.workflows[wf.ID] = clone(wf)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workflows, id)
	return nil
}

// SetStatus flips a workflow's publication status and syncs its timer nodes
// to match.
func (s *MemoryStore) SetStatus(ctx context.Context, id string, status domain.Status) (*domain.Workflow, error) {
	s.mu.Lock()
	wf, ok := s.workflows[id]
	if !ok {
		s.mu.Unlock()
		return nil, &domain.WorkflowNotFoundError{ID: id}
	}
	wf.Status = status
	wf.UpdatedAt = time.Now()
	result := clone(wf)
	syncer := s.syncer
	s.mu.Unlock()

	syncTimers(ctx, syncer, result, status == domain.StatusPublished)
	return result, nil
}

// ListWorkflows satisfies webhookreg.WorkflowLister.
func (s *MemoryStore) ListWorkflows(_ context.Context) ([]domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		out = append(out, *clone(wf))
	}
	return out, nil
}
