package dispatcher

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/flowmesh/engine/internal/domain"
	"github.com/flowmesh/engine/internal/llm"
)

// executeRouter classifies the request into one configured route and
// launches that route's workflow as a sub-run, returning its full result.
func (m *Manager) executeRouter(ctx context.Context, node *domain.Node, cfg *Config, labelToID map[string]string, input map[string]any, allResults map[string]domain.NodeResult) (domain.NodeResult, error) {
	queryTemplate := cfg.UserQueryTemplate
	if queryTemplate == "" {
		queryTemplate = "{{input.output.text}}"
	}
	userQuery := resolveTemplate(queryTemplate, labelToID, input, allResults)
	if userQuery == "" {
		return nil, &domain.ValidationError{Field: "userQueryTemplate", Message: "dispatcher: user query not found in input"}
	}
	if len(cfg.Routes) == 0 {
		return nil, &domain.ValidationError{Field: "routes", Message: "dispatcher: routes are not configured"}
	}

	category := m.classify(ctx, node.ID, cfg, userQuery)

	route, ok := cfg.Routes[category]
	if !ok {
		route, ok = cfg.Routes["default"]
	}
	if !ok {
		return nil, &domain.ValidationError{Field: "routes", Message: "dispatcher: no route found for category " + category}
	}
	if route.WorkflowID == "" {
		return nil, &domain.ValidationError{Field: "routes", Message: "dispatcher: route " + category + " has no workflow_id"}
	}

	subInput := map[string]any{}
	for k, v := range input {
		subInput[k] = v
	}
	subInput["dispatcher_info"] = map[string]any{"category": category}

	result, err := m.launchByID(ctx, route.WorkflowID, subInput)
	if err != nil {
		return nil, err
	}
	return domain.NodeResult{
		"success":  result.Success,
		"result":   result.ResultPool,
		"error":    result.Error,
		"category": category,
	}, nil
}

// classify picks a route key by AI classification or keyword matching,
// falling back to "default" on any failure so a misbehaving classifier
// never aborts the run.
func (m *Manager) classify(ctx context.Context, nodeID string, cfg *Config, userQuery string) string {
	if !cfg.useAI() {
		lowerQuery := strings.ToLower(userQuery)
		for name, route := range cfg.Routes {
			if name == "default" {
				continue
			}
			for _, kw := range route.Keywords {
				if strings.Contains(lowerQuery, strings.ToLower(kw)) {
					return name
				}
			}
		}
		return "default"
	}

	if m.Chat == nil {
		log.Warn().Str("node_id", nodeID).Msg("dispatcher: AI mode requested but no chat client configured, falling back to default")
		return "default"
	}

	prompt := cfg.Prompt
	if prompt == "" {
		prompt = "Determine the request category: {categories}. Request: {query}. Answer with one word."
	}
	var categories []string
	for name := range cfg.Routes {
		categories = append(categories, name)
	}
	classificationPrompt := strings.NewReplacer(
		"{категории}", strings.Join(categories, ", "),
		"{запрос пользователя}", userQuery,
		"{categories}", strings.Join(categories, ", "),
		"{query}", userQuery,
	).Replace(prompt)

	text, err := m.Chat.ChatCompletion(ctx, []llm.Message{
		{Role: "system", Content: "You are a request classifier."},
		{Role: "user", Content: classificationPrompt},
	})
	if err != nil {
		log.Error().Err(err).Str("node_id", nodeID).Msg("dispatcher: classification call failed, falling back to default")
		return "default"
	}

	answer := strings.ToLower(strings.TrimSpace(text))
	if _, ok := cfg.Routes[answer]; ok {
		return answer
	}
	return "default"
}
