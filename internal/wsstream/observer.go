package wsstream

import (
	"time"

	"github.com/flowmesh/engine/internal/domain"
)

// Observer adapts a Broadcaster to domain.RunObserver, so a graphexec.Engine
// can be configured to stream its progress without depending on wsstream.
type Observer struct {
	hub Broadcaster
}

// NewObserver builds an Observer broadcasting through hub.
func NewObserver(hub Broadcaster) *Observer { return &Observer{hub: hub} }

var _ domain.RunObserver = (*Observer)(nil)

func (o *Observer) OnRunStarted(workflowID, runID string) {
	o.hub.Broadcast(workflowID, runID, newEvent(EventRunStarted, workflowID, runID))
}

func (o *Observer) OnRunCompleted(workflowID, runID string, duration time.Duration) {
	event := newEvent(EventRunCompleted, workflowID, runID)
	event.DurationMs = duration.Milliseconds()
	o.hub.Broadcast(workflowID, runID, event)
}

func (o *Observer) OnRunFailed(workflowID, runID, errMsg string, duration time.Duration) {
	event := newEvent(EventRunFailed, workflowID, runID)
	event.DurationMs = duration.Milliseconds()
	event.Error = errMsg
	o.hub.Broadcast(workflowID, runID, event)
}

func (o *Observer) OnNodeStarted(workflowID, runID, nodeID, nodeType string) {
	event := newEvent(EventNodeStarted, workflowID, runID)
	event.NodeID, event.NodeType = nodeID, nodeType
	o.hub.Broadcast(workflowID, runID, event)
}

func (o *Observer) OnNodeCompleted(workflowID, runID, nodeID, nodeType string, duration time.Duration) {
	event := newEvent(EventNodeCompleted, workflowID, runID)
	event.NodeID, event.NodeType = nodeID, nodeType
	event.DurationMs = duration.Milliseconds()
	o.hub.Broadcast(workflowID, runID, event)
}

func (o *Observer) OnNodeFailed(workflowID, runID, nodeID, nodeType, errMsg string, duration time.Duration) {
	event := newEvent(EventNodeFailed, workflowID, runID)
	event.NodeID, event.NodeType = nodeID, nodeType
	event.DurationMs = duration.Milliseconds()
	event.Error = errMsg
	o.hub.Broadcast(workflowID, runID, event)
}
