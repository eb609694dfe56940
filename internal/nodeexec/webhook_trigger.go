package nodeexec

import (
	"context"

	"github.com/flowmesh/engine/internal/domain"
)

// WebhookTriggerExecutor is the first-node-only entry point that forwards
// the HTTP arrival payload as its own output.
type WebhookTriggerExecutor struct{}

func (e *WebhookTriggerExecutor) Type() string { return domain.NodeTypeWebhookTrigger }

func (e *WebhookTriggerExecutor) Execute(_ context.Context, _ *domain.Node, _ map[string]string, input map[string]any, _ map[string]domain.NodeResult) (domain.NodeResult, error) {
	return domain.NodeResult{
		"success": true,
		"output":  input,
	}, nil
}
