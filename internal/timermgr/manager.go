// Package timermgr schedules per-workflow timer nodes: one goroutine per
// timer, cooperative cancellation, and a single-flight guard so an
// overrunning tick is dropped rather than queued.
package timermgr

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flowmesh/engine/internal/domain"
)

const defaultIntervalMinutes = 5

type entry struct {
	mu     sync.Mutex
	timer  domain.Timer
	cancel context.CancelFunc
}

func (e *entry) snapshot() domain.Timer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timer
}

// Manager owns every active timer, keyed by its idempotent
// workflow_timer_<workflow_id> id.
type Manager struct {
	runner  domain.WorkflowRunner
	fetcher domain.WorkflowFetcher

	mu     sync.Mutex
	timers map[string]*entry
}

// New builds a Manager with no active timers.
func New(runner domain.WorkflowRunner, fetcher domain.WorkflowFetcher) *Manager {
	return &Manager{runner: runner, fetcher: fetcher, timers: make(map[string]*entry)}
}

// Create idempotently (re)creates the timer for a workflow's timer node.
// Activation is refused, and any existing timer deactivated, if the
// workflow is not published.
func (m *Manager) Create(ctx context.Context, nodeID, workflowID string, intervalMinutes int) (domain.Timer, error) {
	wf, err := m.fetcher.Get(ctx, workflowID)
	if err != nil {
		return domain.Timer{}, err
	}
	timerID := domain.WorkflowTimerID(workflowID)
	if wf.Status != domain.StatusPublished {
		m.Delete(timerID)
		return domain.Timer{}, &domain.WorkflowUnpublishedError{ID: workflowID}
	}
	if intervalMinutes <= 0 {
		intervalMinutes = defaultIntervalMinutes
	}
	return m.start(timerID, nodeID, workflowID, intervalMinutes), nil
}

func (m *Manager) start(timerID, nodeID, workflowID string, intervalMinutes int) domain.Timer {
	m.mu.Lock()
	if existing, ok := m.timers[timerID]; ok {
		existing.cancel()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e := &entry{
		timer: domain.Timer{
			TimerID:         timerID,
			NodeID:          nodeID,
			WorkflowID:      workflowID,
			IntervalMinutes: intervalMinutes,
			Status:          domain.TimerActive,
			NextExecution:   time.Now().Add(time.Duration(intervalMinutes) * time.Minute),
		},
		cancel: cancel,
	}
	m.timers[timerID] = e
	m.mu.Unlock()

	go m.loop(runCtx, e)
	return e.snapshot()
}

// loop is the timer's background task: sleep, fire, repeat. Cancellation is
// checked before and during the sleep so a pause/delete takes effect
// immediately rather than after the next fire.
func (m *Manager) loop(ctx context.Context, e *entry) {
	for {
		e.mu.Lock()
		interval := time.Duration(e.timer.IntervalMinutes) * time.Minute
		e.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		e.mu.Lock()
		e.timer.NextExecution = time.Now().Add(interval)
		if e.timer.IsExecuting {
			e.mu.Unlock()
			log.Warn().Str("timer_id", e.timer.TimerID).Msg("timermgr: previous tick still executing, dropping this tick")
			continue
		}
		e.timer.IsExecuting = true
		workflowID, nodeID := e.timer.WorkflowID, e.timer.NodeID
		e.mu.Unlock()

		m.fire(ctx, e.timer.TimerID, workflowID, nodeID)

		e.mu.Lock()
		e.timer.IsExecuting = false
		e.mu.Unlock()
	}
}

func (m *Manager) fire(ctx context.Context, timerID, workflowID, nodeID string) {
	log.Info().Str("timer_id", timerID).Str("workflow_id", workflowID).Msg("timermgr: firing")
	start := time.Now()
	result, err := m.runner.RunWorkflowFrom(ctx, workflowID, nodeID, map[string]any{})
	elapsed := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("timer_id", timerID).Msg("timermgr: run failed")
		return
	}
	if !result.Success {
		log.Error().Str("timer_id", timerID).Str("error", result.Error).Msg("timermgr: workflow run reported failure")
		return
	}
	log.Info().Str("timer_id", timerID).Dur("elapsed", elapsed).Msg("timermgr: run completed")
}

// List returns a snapshot of every active or paused timer.
func (m *Manager) List() []domain.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Timer, 0, len(m.timers))
	for _, e := range m.timers {
		out = append(out, e.snapshot())
	}
	return out
}

// Get returns one timer's current state.
func (m *Manager) Get(timerID string) (domain.Timer, bool) {
	m.mu.Lock()
	e, ok := m.timers[timerID]
	m.mu.Unlock()
	if !ok {
		return domain.Timer{}, false
	}
	return e.snapshot(), true
}

// Pause cancels a timer's background task without forgetting it, so Resume
// can restart it with the same schedule.
func (m *Manager) Pause(timerID string) error {
	m.mu.Lock()
	e, ok := m.timers[timerID]
	m.mu.Unlock()
	if !ok {
		return &timerNotFoundError{timerID}
	}
	e.cancel()
	e.mu.Lock()
	e.timer.Status = domain.TimerPaused
	e.mu.Unlock()
	return nil
}

// Resume restarts a paused timer's background task with a fresh schedule.
func (m *Manager) Resume(timerID string) (domain.Timer, error) {
	m.mu.Lock()
	e, ok := m.timers[timerID]
	m.mu.Unlock()
	if !ok {
		return domain.Timer{}, &timerNotFoundError{timerID}
	}
	t := e.snapshot()
	return m.start(timerID, t.NodeID, t.WorkflowID, t.IntervalMinutes), nil
}

// Delete cancels and forgets a timer entirely. It is safe to call on an
// unknown timer id; the side effect it is usually invoked for (cancel) has
// nothing left to undo in that case.
func (m *Manager) Delete(timerID string) {
	m.mu.Lock()
	e, ok := m.timers[timerID]
	delete(m.timers, timerID)
	m.mu.Unlock()
	if ok {
		e.cancel()
	}
}

// ExecuteNow runs a timer's workflow once, synchronously, without altering
// its schedule or is_executing bookkeeping.
func (m *Manager) ExecuteNow(ctx context.Context, timerID string) (domain.ExecutionResult, error) {
	m.mu.Lock()
	e, ok := m.timers[timerID]
	m.mu.Unlock()
	if !ok {
		return domain.ExecutionResult{}, &timerNotFoundError{timerID}
	}
	t := e.snapshot()
	return m.runner.RunWorkflowFrom(ctx, t.WorkflowID, t.NodeID, map[string]any{})
}

type timerNotFoundError struct{ timerID string }

func (e *timerNotFoundError) Error() string { return "timer not found: " + e.timerID }
