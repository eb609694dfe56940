// Package wsstream streams Graph Executor run/node events to WebSocket
// clients, indexed by workflow id and run id. There is no per-connection
// authentication: the HTTP surface this serves is an internal control
// plane, matching the rest of the service.
package wsstream

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Broadcaster is the narrow interface domain.RunObserver adapts to.
type Broadcaster interface {
	Broadcast(workflowID, runID string, event *Event)
}

type broadcastMsg struct {
	workflowID string
	runID      string
	event      *Event
}

// Hub fans run/node events out to subscribed clients. It implements
// Broadcaster.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMsg

	byWorkflowID map[string]map[*Client]bool
	byRunID      map[string]map[*Client]bool

	mu sync.RWMutex
}

// NewHub builds an idle Hub; call Run in its own goroutine to start it.
func NewHub() *Hub {
	return &Hub{
		clients:      make(map[*Client]bool),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		broadcast:    make(chan *broadcastMsg, 256),
		byWorkflowID: make(map[string]map[*Client]bool),
		byRunID:      make(map[string]map[*Client]bool),
	}
}

// Run is the hub's event loop; it never returns (there is no shutdown
// signal — the process owns the hub for its life).
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case msg := <-h.broadcast:
			h.dispatch(msg)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	log.Debug().Str("client_id", c.id).Int("total_clients", len(h.clients)).Msg("wsstream: client registered")
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)

	c.subs.mu.RLock()
	for wfID := range c.subs.workflows {
		if m, ok := h.byWorkflowID[wfID]; ok {
			delete(m, c)
			if len(m) == 0 {
				delete(h.byWorkflowID, wfID)
			}
		}
	}
	for runID := range c.subs.runs {
		if m, ok := h.byRunID[runID]; ok {
			delete(m, c)
			if len(m) == 0 {
				delete(h.byRunID, runID)
			}
		}
	}
	c.subs.mu.RUnlock()
	log.Debug().Str("client_id", c.id).Int("total_clients", len(h.clients)).Msg("wsstream: client unregistered")
}

// Broadcast implements Broadcaster.
func (h *Hub) Broadcast(workflowID, runID string, event *Event) {
	h.broadcast <- &broadcastMsg{workflowID: workflowID, runID: runID, event: event}
}

func (h *Hub) dispatch(msg *broadcastMsg) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := make(map[*Client]bool)
	if msg.runID != "" {
		for c := range h.byRunID[msg.runID] {
			targets[c] = true
		}
	}
	if msg.workflowID != "" {
		for c := range h.byWorkflowID[msg.workflowID] {
			targets[c] = true
		}
	}

	for c := range targets {
		select {
		case c.send <- msg.event:
		default:
			log.Warn().Str("client_id", c.id).Str("event_type", msg.event.Type).Msg("wsstream: client buffer full, dropping message")
		}
	}
}

// Subscribe registers a client's interest in a workflow id, a run id, or
// both.
func (h *Hub) Subscribe(c *Client, workflowID, runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.subs.mu.Lock()
	defer c.subs.mu.Unlock()

	if workflowID != "" {
		c.subs.workflows[workflowID] = true
		if h.byWorkflowID[workflowID] == nil {
			h.byWorkflowID[workflowID] = make(map[*Client]bool)
		}
		h.byWorkflowID[workflowID][c] = true
	}
	if runID != "" {
		c.subs.runs[runID] = true
		if h.byRunID[runID] == nil {
			h.byRunID[runID] = make(map[*Client]bool)
		}
		h.byRunID[runID][c] = true
	}
}

// Unsubscribe reverses Subscribe.
func (h *Hub) Unsubscribe(c *Client, workflowID, runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.subs.mu.Lock()
	defer c.subs.mu.Unlock()

	if workflowID != "" {
		delete(c.subs.workflows, workflowID)
		if m, ok := h.byWorkflowID[workflowID]; ok {
			delete(m, c)
			if len(m) == 0 {
				delete(h.byWorkflowID, workflowID)
			}
		}
	}
	if runID != "" {
		delete(c.subs.runs, runID)
		if m, ok := h.byRunID[runID]; ok {
			delete(m, c)
			if len(m) == 0 {
				delete(h.byRunID, runID)
			}
		}
	}
}

// ClientCount reports how many clients are currently connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
