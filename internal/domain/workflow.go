package domain

import (
	"regexp"
	"strings"
	"time"
)

// Status gates trigger activation: timers and webhooks must refuse to fire
// against anything but a published workflow.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Workflow is a named, persisted directed graph of nodes and connections.
type Workflow struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`
	Status      Status       `json:"status"`
	Revision    int64        `json:"-"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

var slugInvalidRun = regexp.MustCompile(`[^a-z0-9_]+`)
var slugWhitespace = regexp.MustCompile(`\s+`)

// SlugifyWorkflowID derives a workflow id from its display name: lowercase,
// whitespace collapsed to underscores, everything outside [a-z0-9_] dropped.
func SlugifyWorkflowID(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugWhitespace.ReplaceAllString(s, "_")
	s = slugInvalidRun.ReplaceAllString(s, "")
	return s
}

// NodeByID returns the node with the given id, if present.
func (w *Workflow) NodeByID(id string) (*Node, bool) {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i], true
		}
	}
	return nil, false
}

// LabelToIDMap builds the label -> node id lookup used by the template
// resolver, falling back to the node's own id when it carries no label.
func (w *Workflow) LabelToIDMap() map[string]string {
	m := make(map[string]string, len(w.Nodes))
	for _, n := range w.Nodes {
		key := n.Label
		if key == "" {
			key = n.ID
		}
		m[key] = n.ID
	}
	return m
}

// OutgoingFrom returns every connection whose source is the given node id.
func (w *Workflow) OutgoingFrom(nodeID string) []Connection {
	var out []Connection
	for _, c := range w.Connections {
		if c.Source == nodeID {
			out = append(out, c)
		}
	}
	return out
}

// IncomingTo returns every connection whose target is the given node id.
func (w *Workflow) IncomingTo(nodeID string) []Connection {
	var in []Connection
	for _, c := range w.Connections {
		if c.Target == nodeID {
			in = append(in, c)
		}
	}
	return in
}

// Validate enforces the structural invariants that must hold before a
// workflow may be stored or executed: unique node ids, unique labels.
func (w *Workflow) Validate() error {
	ids := make(map[string]bool, len(w.Nodes))
	labels := make(map[string]bool, len(w.Nodes))
	for _, n := range w.Nodes {
		if n.ID == "" {
			return &ValidationError{Field: "node.id", Message: "node id must not be empty"}
		}
		if ids[n.ID] {
			return &ValidationError{Field: "node.id", Message: "duplicate node id: " + n.ID}
		}
		ids[n.ID] = true

		if n.Label != "" {
			if labels[n.Label] {
				return &ValidationError{Field: "node.label", Message: "duplicate node label: " + n.Label}
			}
			labels[n.Label] = true
		}
	}
	for _, c := range w.Connections {
		if _, ok := ids[c.Source]; !ok {
			return &ValidationError{Field: "connection.source", Message: "unknown source node: " + c.Source}
		}
		if _, ok := ids[c.Target]; !ok {
			return &ValidationError{Field: "connection.target", Message: "unknown target node: " + c.Target}
		}
	}
	return nil
}

// TimerNodes returns every node of type "timer" in the graph.
func (w *Workflow) TimerNodes() []Node {
	var out []Node
	for _, n := range w.Nodes {
		if n.Type == NodeTypeTimer {
			out = append(out, n)
		}
	}
	return out
}

// WebhookTriggerNodeByWebhookID finds the webhook_trigger node whose
// config.webhookId matches the given id, if any.
func (w *Workflow) WebhookTriggerNodeByWebhookID(webhookID string) (*Node, bool) {
	for i := range w.Nodes {
		n := &w.Nodes[i]
		if n.Type != NodeTypeWebhookTrigger {
			continue
		}
		if id, _ := n.Config["webhookId"].(string); id == webhookID {
			return n, true
		}
	}
	return nil, false
}
