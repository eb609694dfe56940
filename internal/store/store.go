// Package store implements the Workflow Store: a persistent key-value map
// over workflow id, with an in-memory implementation for tests and local
// runs and a Postgres-backed implementation (via bun) for production.
package store

import (
	"context"
	"time"

	"github.com/flowmesh/engine/internal/domain"
)

// Summary is the trimmed projection returned by List.
type Summary struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Status    domain.Status `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// TimerSyncer is the narrow slice of timermgr.Manager the store needs to
// carry out SetStatus's side effects. Kept here, rather than importing
// timermgr directly, so store has no dependency on the scheduling package.
type TimerSyncer interface {
	Create(ctx context.Context, nodeID, workflowID string, intervalMinutes int) (domain.Timer, error)
	Delete(timerID string)
}

// Store is the Workflow Store's full interface. Both implementations in
// this package satisfy it, as does anything else exposing the same
// operations (e.g. a test double).
type Store interface {
	List(ctx context.Context) ([]Summary, error)
	Get(ctx context.Context, id string) (*domain.Workflow, error)
	Upsert(ctx context.Context, wf *domain.Workflow) error
	Delete(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id string, status domain.Status) (*domain.Workflow, error)

	// SetTimerSyncer wires the Timer Manager in after construction, so this
	// package never imports timermgr directly.
	SetTimerSyncer(syncer TimerSyncer)

	// ListWorkflows satisfies webhookreg.WorkflowLister: a full scan used by
	// webhook trigger resolution.
	ListWorkflows(ctx context.Context) ([]domain.Workflow, error)
}

// syncTimers applies SetStatus's timer side effect: a published workflow
// gets the one active timer WorkflowTimerID(wf.ID), bound to its timer node
// (with several timer nodes, the last one listed wins); a drafted one has
// that timer torn down. Shared by both Store implementations.
func syncTimers(ctx context.Context, syncer TimerSyncer, wf *domain.Workflow, published bool) {
	if syncer == nil {
		return
	}
	for _, node := range wf.TimerNodes() {
		timerID := domain.WorkflowTimerID(wf.ID)
		if !published {
			syncer.Delete(timerID)
			continue
		}
		interval := 0
		if v, ok := node.Config["interval"]; ok {
			switch n := v.(type) {
			case float64:
				interval = int(n)
			case int:
				interval = n
			}
		}
		if _, err := syncer.Create(ctx, node.ID, wf.ID, interval); err != nil {
			continue
		}
	}
}
