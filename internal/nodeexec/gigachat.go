package nodeexec

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flowmesh/engine/internal/domain"
	"github.com/flowmesh/engine/internal/llm"
	"github.com/flowmesh/engine/internal/llmjson"
	"github.com/flowmesh/engine/internal/template"
)

// GigachatConfig is the typed shape of a gigachat node's config map.
type GigachatConfig struct {
	SystemMessage string `json:"systemMessage"`
	UserMessage   string `json:"userMessage"`
}

// GigachatExecutor calls an LLM with templated system/user messages.
type GigachatExecutor struct {
	Chat llm.ChatClient
}

func (e *GigachatExecutor) Type() string { return domain.NodeTypeGigachat }

func (e *GigachatExecutor) Execute(ctx context.Context, node *domain.Node, labelToID map[string]string, input map[string]any, allResults map[string]domain.NodeResult) (domain.NodeResult, error) {
	start := time.Now()
	cfg, err := ParseConfig[GigachatConfig](node.Config)
	if err != nil {
		return nil, &domain.ValidationError{Field: "config", Message: err.Error()}
	}
	if cfg.SystemMessage == "" {
		cfg.SystemMessage = "You are a helpful assistant"
	}

	src := template.Source{
		InitialInput: input,
		LabelToID:    labelToID,
		Lookup:       func(id string) (domain.NodeResult, bool) { r, ok := allResults[id]; return r, ok },
	}
	warn := func(msg string) { log.Warn().Str("node_id", node.ID).Msg(msg) }

	systemMessage := template.Resolve(cfg.SystemMessage, src, warn)
	userMessage := template.Resolve(cfg.UserMessage, src, warn)

	if userMessage == "" {
		return nil, &domain.ValidationError{Field: "userMessage", Message: "gigachat node resolved to an empty user message"}
	}

	raw, err := e.Chat.ChatCompletion(ctx, []llm.Message{
		{Role: "system", Content: systemMessage},
		{Role: "user", Content: userMessage},
	})
	if err != nil {
		return nil, &domain.ExternalServiceError{Service: "gigachat", Cause: err}
	}

	text := strings.TrimSpace(llmjson.StripFences(raw))
	var parsedJSON any
	if v, perr := llmjson.Parse(raw); perr == nil {
		parsedJSON = v
	}

	meta := baseMeta(domain.NodeTypeGigachat, true, time.Since(start).Milliseconds())
	meta["id_node"] = node.ID
	meta["length"] = len(raw)
	meta["words"] = len(strings.Fields(raw))

	return domain.NodeResult{
		"success": true,
		"text":    text,
		"json":    parsedJSON,
		"meta":    meta,
		"inputs": map[string]any{
			"system_message_template": cfg.SystemMessage,
			"user_message_template":   cfg.UserMessage,
			"final_system_message":    systemMessage,
			"final_user_message":      userMessage,
		},
	}, nil
}
