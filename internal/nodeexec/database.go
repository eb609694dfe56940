package nodeexec

import (
	"context"
	"time"

	"github.com/flowmesh/engine/internal/domain"
	"github.com/flowmesh/engine/internal/template"
)

// DatabaseConfig is the typed shape of a database node's config map.
type DatabaseConfig struct {
	Query      string `json:"query"`
	Connection string `json:"connection"`
}

// DatabaseExecutor is a stub: it accepts a templated query and returns a
// structured acknowledgement rather than touching a real database. No
// database driver is wired for node execution — the Workflow Store owns
// the engine's actual SQL surface.
type DatabaseExecutor struct{}

func (e *DatabaseExecutor) Type() string { return domain.NodeTypeDatabase }

func (e *DatabaseExecutor) Execute(_ context.Context, node *domain.Node, labelToID map[string]string, input map[string]any, allResults map[string]domain.NodeResult) (domain.NodeResult, error) {
	cfg, err := ParseConfig[DatabaseConfig](node.Config)
	if err != nil {
		return nil, &domain.ValidationError{Field: "config", Message: err.Error()}
	}
	if cfg.Connection == "" {
		cfg.Connection = "postgres"
	}

	src := template.Source{
		InitialInput: input,
		LabelToID:    labelToID,
		Lookup:       func(id string) (domain.NodeResult, bool) { r, ok := allResults[id]; return r, ok },
	}
	query := template.Resolve(cfg.Query, src, nil)
	if query == "" {
		return nil, &domain.ValidationError{Field: "query", Message: "database node: query is not specified"}
	}

	return domain.NodeResult{
		"success": true,
		"rows": []map[string]any{
			{"id": 1, "text": "Sample Data", "created_at": time.Now()},
		},
		"rowCount":   1,
		"query":      query,
		"connection": cfg.Connection,
	}, nil
}
