package nodeexec

import (
	"context"
	"time"

	"github.com/flowmesh/engine/internal/domain"
	"github.com/flowmesh/engine/internal/utils"
)

// TimerConfig is the typed shape of a timer node's config map.
type TimerConfig struct {
	Interval int    `json:"interval"`
	Timezone string `json:"timezone"`
}

// TimerExecutor is the first-node-only trigger envelope a scheduled run
// begins with. It does not itself manage scheduling — see timermgr.
type TimerExecutor struct{}

func (e *TimerExecutor) Type() string { return domain.NodeTypeTimer }

func (e *TimerExecutor) Execute(_ context.Context, node *domain.Node, _ map[string]string, _ map[string]any, _ map[string]domain.NodeResult) (domain.NodeResult, error) {
	cfg, err := ParseConfig[TimerConfig](node.Config)
	if err != nil {
		return nil, &domain.ValidationError{Field: "config", Message: err.Error()}
	}
	cfg.Interval = utils.DefaultValue(cfg.Interval, 5)
	cfg.Timezone = utils.DefaultValue(cfg.Timezone, "UTC")
	now := time.Now()
	return domain.NodeResult{
		"success": true,
		"output": map[string]any{
			"text":      "Workflow triggered by schedule at " + now.Format(time.RFC3339),
			"timestamp": now,
			"interval":  cfg.Interval,
			"timezone":  cfg.Timezone,
			"node_id":   node.ID,
		},
	}, nil
}
