package nodeexec

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flowmesh/engine/internal/domain"
	"github.com/flowmesh/engine/internal/llmjson"
	"github.com/flowmesh/engine/internal/template"
)

// webhookTimeout is the outbound call budget for the `webhook` node type.
const webhookTimeout = 30 * time.Second

// WebhookConfig is the typed shape of a webhook node's config map.
type WebhookConfig struct {
	URL          string `json:"url"`
	Method       string `json:"method"`
	Headers      string `json:"headers"`
	BodyTemplate string `json:"bodyTemplate"`
}

// WebhookExecutor sends an outbound HTTP request with a templated URL and
// JSON body.
type WebhookExecutor struct {
	Client *http.Client
}

func (e *WebhookExecutor) Type() string { return domain.NodeTypeWebhook }

func (e *WebhookExecutor) httpClient() *http.Client {
	if e.Client != nil {
		return e.Client
	}
	return &http.Client{Timeout: webhookTimeout}
}

func (e *WebhookExecutor) Execute(ctx context.Context, node *domain.Node, labelToID map[string]string, input map[string]any, allResults map[string]domain.NodeResult) (domain.NodeResult, error) {
	start := time.Now()
	cfg, err := ParseConfig[WebhookConfig](node.Config)
	if err != nil {
		return nil, &domain.ValidationError{Field: "config", Message: err.Error()}
	}
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPost
	}
	if cfg.Headers == "" {
		cfg.Headers = "Content-Type: application/json"
	}

	src := template.Source{
		InitialInput: input,
		LabelToID:    labelToID,
		Lookup:       func(id string) (domain.NodeResult, bool) { r, ok := allResults[id]; return r, ok },
	}
	warn := func(msg string) { log.Warn().Str("node_id", node.ID).Msg(msg) }

	url := template.Resolve(cfg.URL, src, warn)
	if url == "" {
		return nil, &domain.ValidationError{Field: "url", Message: "webhook node resolved to an empty URL"}
	}

	headers := parseHeaderLines(cfg.Headers)

	var bodyReader io.Reader
	if method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch {
		resolvedBody := template.Resolve(cfg.BodyTemplate, src, warn)
		if strings.TrimSpace(resolvedBody) != "" {
			if _, perr := llmjson.Parse(resolvedBody); perr != nil {
				return nil, &domain.ValidationError{Field: "bodyTemplate", Message: "webhook body did not parse as JSON: " + perr.Error()}
			}
			bodyReader = bytes.NewReader([]byte(resolvedBody))
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, &domain.ExternalServiceError{Service: "webhook", Cause: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.httpClient().Do(req)
	if err != nil {
		return nil, &domain.ExternalServiceError{Service: "webhook", Cause: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	var respJSON any
	_ = json.Unmarshal(respBody, &respJSON)

	meta := baseMeta(domain.NodeTypeWebhook, resp.StatusCode < 400, time.Since(start).Milliseconds())
	meta["status_code"] = resp.StatusCode
	meta["response_headers"] = flattenHeader(resp.Header)

	return domain.NodeResult{
		"success": resp.StatusCode < 400,
		"text":    string(respBody),
		"json":    respJSON,
		"meta":    meta,
		"inputs": map[string]any{
			"url":    url,
			"method": method,
		},
	}, nil
}

func parseHeaderLines(raw string) map[string]string {
	out := map[string]string{}
	for _, line := range strings.Split(raw, "\n") {
		if idx := strings.Index(line, ":"); idx != -1 {
			key := strings.TrimSpace(line[:idx])
			val := strings.TrimSpace(line[idx+1:])
			if key != "" {
				out[key] = val
			}
		}
	}
	return out
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
