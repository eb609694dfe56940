// Package nodeexec implements one executor per workflow node type. Every
// executor is a pure-ish function over (node, label_to_id_map, inputs,
// all_results) plus whatever external collaborators its node type needs
// (an LLM client, an HTTP client, a sub-workflow runner) — never the
// WorkflowRun itself, so a node executor cannot reach into another node's
// bookkeeping.
package nodeexec

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowmesh/engine/internal/domain"
)

// Executor runs one node type to completion and produces its NodeResult.
type Executor interface {
	Execute(ctx context.Context, node *domain.Node, labelToID map[string]string, input map[string]any, allResults map[string]domain.NodeResult) (domain.NodeResult, error)
	Type() string
}

// Registry dispatches a node to its Executor by type.
type Registry struct {
	byType map[string]Executor
}

// NewRegistry builds an empty registry; callers register executors with Add.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[string]Executor)}
}

// Add registers an executor under its own Type().
func (r *Registry) Add(e Executor) *Registry {
	r.byType[e.Type()] = e
	return r
}

// Get returns the executor for a node type, if registered.
func (r *Registry) Get(nodeType string) (Executor, bool) {
	e, ok := r.byType[nodeType]
	return e, ok
}

// ParseConfig round-trips a node's opaque config map through JSON into a
// typed struct. Mirrors the generic config-parsing helper pattern used
// throughout the node executor layer: configs are free-form maps at rest
// and typed structs at the point of use.
func ParseConfig[T any](config map[string]any) (*T, error) {
	raw, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &out, nil
}

// baseMeta builds the "meta" map of a NodeResult:
// {node_type, timestamp, success, execution_time_ms}.
func baseMeta(nodeType string, success bool, elapsedMs int64) map[string]any {
	return map[string]any{
		"node_type":         nodeType,
		"timestamp":         time.Now(),
		"success":           success,
		"execution_time_ms": elapsedMs,
	}
}
