package nodeexec

import (
	"context"
	"fmt"
	"time"

	"github.com/flowmesh/engine/internal/domain"
	"github.com/flowmesh/engine/internal/template"
)

// EmailConfig is the typed shape of an email node's config map.
type EmailConfig struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// EmailExecutor is a stub: it accepts templated fields and returns a
// structured acknowledgement rather than delivering mail. No outbound mail
// transport is in scope.
type EmailExecutor struct{}

func (e *EmailExecutor) Type() string { return domain.NodeTypeEmail }

func (e *EmailExecutor) Execute(_ context.Context, node *domain.Node, labelToID map[string]string, input map[string]any, allResults map[string]domain.NodeResult) (domain.NodeResult, error) {
	cfg, err := ParseConfig[EmailConfig](node.Config)
	if err != nil {
		return nil, &domain.ValidationError{Field: "config", Message: err.Error()}
	}

	src := template.Source{
		InitialInput: input,
		LabelToID:    labelToID,
		Lookup:       func(id string) (domain.NodeResult, bool) { r, ok := allResults[id]; return r, ok },
	}
	to := template.Resolve(cfg.To, src, nil)
	subject := template.Resolve(cfg.Subject, src, nil)
	body := template.Resolve(cfg.Body, src, nil)

	if to == "" {
		return nil, &domain.ValidationError{Field: "to", Message: "email node: recipient is not specified"}
	}

	return domain.NodeResult{
		"sent":      true,
		"success":   true,
		"to":        to,
		"subject":   subject,
		"messageId": fmt.Sprintf("msg_%d", time.Now().UnixNano()),
	}, nil
}
