package wsstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureBroadcaster struct {
	events []*Event
}

func (c *captureBroadcaster) Broadcast(workflowID, runID string, event *Event) {
	c.events = append(c.events, event)
}

func TestObserver_OnNodeFailedSetsErrorAndDuration(t *testing.T) {
	cap := &captureBroadcaster{}
	obs := NewObserver(cap)

	obs.OnNodeFailed("wf-1", "run-1", "n1", "webhook", "boom", 250*time.Millisecond)

	require.Len(t, cap.events, 1)
	event := cap.events[0]
	assert.Equal(t, EventNodeFailed, event.Type)
	assert.Equal(t, "n1", event.NodeID)
	assert.Equal(t, "webhook", event.NodeType)
	assert.Equal(t, "boom", event.Error)
	assert.Equal(t, int64(250), event.DurationMs)
}

func TestObserver_OnRunCompletedHasNoError(t *testing.T) {
	cap := &captureBroadcaster{}
	obs := NewObserver(cap)

	obs.OnRunCompleted("wf-1", "run-1", time.Second)

	require.Len(t, cap.events, 1)
	assert.Equal(t, EventRunCompleted, cap.events[0].Type)
	assert.Empty(t, cap.events[0].Error)
	assert.Equal(t, int64(1000), cap.events[0].DurationMs)
}
