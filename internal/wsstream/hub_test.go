package wsstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestClient(hub *Hub) *Client {
	return &Client{hub: hub, id: "client-1", subs: newSubscriptions(), send: make(chan *Event, sendBufferSize)}
}

func TestNewHub(t *testing.T) {
	hub := NewHub()
	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.byWorkflowID)
	assert.NotNil(t, hub.byRunID)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := newTestClient(hub)
	hub.register <- client
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, hub.ClientCount())

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_BroadcastByWorkflowID(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client1 := newTestClient(hub)
	client2 := newTestClient(hub)
	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)

	hub.Subscribe(client1, "wf-1", "")
	hub.Subscribe(client2, "wf-2", "")

	hub.Broadcast("wf-1", "", newEvent(EventRunStarted, "wf-1", "run-1"))

	select {
	case event := <-client1.send:
		assert.Equal(t, EventRunStarted, event.Type)
	case <-time.After(time.Second):
		t.Fatal("client1 did not receive event")
	}

	select {
	case <-client2.send:
		t.Fatal("client2 should not receive event for a different workflow")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_BroadcastByRunID(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := newTestClient(hub)
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.Subscribe(client, "", "run-123")
	hub.Broadcast("wf-1", "run-123", newEvent(EventNodeCompleted, "wf-1", "run-123"))

	select {
	case event := <-client.send:
		assert.Equal(t, EventNodeCompleted, event.Type)
		assert.Equal(t, "run-123", event.RunID)
	case <-time.After(time.Second):
		t.Fatal("client did not receive event")
	}
}

func TestHub_UnsubscribeCleansIndex(t *testing.T) {
	hub := NewHub()
	client := newTestClient(hub)

	hub.Subscribe(client, "wf-1", "")
	hub.Unsubscribe(client, "wf-1", "")

	hub.mu.RLock()
	_, ok := hub.byWorkflowID["wf-1"]
	hub.mu.RUnlock()
	assert.False(t, ok)
}

func TestHub_UnregisterCleansSubscriptionIndexes(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := newTestClient(hub)
	hub.register <- client
	time.Sleep(10 * time.Millisecond)
	hub.Subscribe(client, "wf-1", "run-1")

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	_, wfOk := hub.byWorkflowID["wf-1"]
	_, runOk := hub.byRunID["run-1"]
	hub.mu.RUnlock()
	assert.False(t, wfOk)
	assert.False(t, runOk)
}

func TestHub_ImplementsBroadcaster(t *testing.T) {
	var _ Broadcaster = NewHub()
}
