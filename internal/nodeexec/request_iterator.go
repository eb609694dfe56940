package nodeexec

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flowmesh/engine/internal/domain"
	"github.com/flowmesh/engine/internal/llmjson"
	"github.com/flowmesh/engine/internal/template"
)

const requestIteratorTimeout = 10 * time.Second

// RequestIteratorConfig is the typed shape of a request_iterator node's
// config map.
type RequestIteratorConfig struct {
	JSONInput      string `json:"jsonInput"`
	BaseURL        string `json:"baseUrl"`
	ExecutionMode  string `json:"executionMode"`
	CommonHeaders  string `json:"commonHeaders"`
}

type subRequest struct {
	Method   string            `json:"method"`
	Endpoint string            `json:"endpoint"`
	Params   map[string]string `json:"params"`
	Body     any               `json:"body"`
	Headers  map[string]string `json:"headers"`
}

// RequestIteratorExecutor dispatches a templated array of sub-requests
// sequentially or in parallel. Parallel mode starts every sub-request at
// once; there is no cap on the number in flight.
type RequestIteratorExecutor struct {
	Client *http.Client
}

func (e *RequestIteratorExecutor) Type() string { return domain.NodeTypeRequestIter }

func (e *RequestIteratorExecutor) httpClient() *http.Client {
	if e.Client != nil {
		return e.Client
	}
	return &http.Client{Timeout: requestIteratorTimeout}
}

func (e *RequestIteratorExecutor) Execute(ctx context.Context, node *domain.Node, labelToID map[string]string, input map[string]any, allResults map[string]domain.NodeResult) (domain.NodeResult, error) {
	start := time.Now()
	cfg, err := ParseConfig[RequestIteratorConfig](node.Config)
	if err != nil {
		return nil, &domain.ValidationError{Field: "config", Message: err.Error()}
	}
	if cfg.JSONInput == "" {
		return nil, &domain.ValidationError{Field: "jsonInput", Message: "request_iterator: jsonInput template is not configured"}
	}

	src := template.Source{
		InitialInput: input,
		LabelToID:    labelToID,
		Lookup:       func(id string) (domain.NodeResult, bool) { r, ok := allResults[id]; return r, ok },
	}
	warn := func(msg string) { log.Warn().Str("node_id", node.ID).Msg(msg) }
	resolved := template.Resolve(cfg.JSONInput, src, warn)
	if resolved == "" || resolved == cfg.JSONInput {
		resolved = "[]"
	}

	parsed, err := llmjson.Parse(resolved)
	if err != nil {
		return nil, &domain.ValidationError{Field: "jsonInput", Message: "invalid JSON after template replacement: " + err.Error()}
	}

	var requests []subRequest
	switch v := parsed.(type) {
	case []any:
		for _, item := range v {
			requests = append(requests, decodeSubRequest(item))
		}
	case map[string]any:
		requests = append(requests, decodeSubRequest(v))
	}

	commonHeaders := map[string]string{}
	if cfg.CommonHeaders != "" {
		var m map[string]any
		if json.Unmarshal([]byte(cfg.CommonHeaders), &m) == nil {
			for k, v := range m {
				if s, ok := v.(string); ok {
					commonHeaders[k] = s
				}
			}
		}
	}

	responses := e.runAll(ctx, requests, strings.TrimRight(cfg.BaseURL, "/"), commonHeaders, cfg.ExecutionMode == "parallel")

	successCount := 0
	for _, r := range responses {
		if s, _ := r["success"].(bool); s {
			successCount++
		}
	}

	textBytes, _ := json.Marshal(responses)
	meta := baseMeta(domain.NodeTypeRequestIter, true, time.Since(start).Milliseconds())
	meta["executed_requests_count"] = len(responses)
	meta["successful_requests_count"] = successCount
	meta["failed_requests_count"] = len(responses) - successCount

	return domain.NodeResult{
		"success": true,
		"text":    string(textBytes),
		"json":    responses,
		"meta":    meta,
		"inputs": map[string]any{
			"baseUrl":       cfg.BaseURL,
			"executionMode": cfg.ExecutionMode,
		},
	}, nil
}

func decodeSubRequest(v any) subRequest {
	var sr subRequest
	b, _ := json.Marshal(v)
	_ = json.Unmarshal(b, &sr)
	return sr
}

func (e *RequestIteratorExecutor) runAll(ctx context.Context, reqs []subRequest, baseURL string, commonHeaders map[string]string, parallel bool) []map[string]any {
	out := make([]map[string]any, len(reqs))
	run := func(i int) {
		out[i] = e.runOne(ctx, reqs[i], baseURL, commonHeaders)
	}
	if !parallel {
		for i := range reqs {
			run(i)
		}
		return out
	}
	var wg sync.WaitGroup
	for i := range reqs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(i)
		}()
	}
	wg.Wait()
	return out
}

func (e *RequestIteratorExecutor) runOne(ctx context.Context, sr subRequest, baseURL string, commonHeaders map[string]string) map[string]any {
	if sr.Endpoint == "" {
		return map[string]any{"success": false, "error": "missing endpoint"}
	}
	url := resolveRequestURL(baseURL, sr.Endpoint)
	if url == "" {
		return map[string]any{"success": false, "error": "relative endpoint with no baseUrl configured"}
	}

	method := strings.ToUpper(sr.Method)
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader *strings.Reader
	if sr.Body != nil && (method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch) {
		b, _ := json.Marshal(sr.Body)
		bodyReader = strings.NewReader(string(b))
	} else {
		bodyReader = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return map[string]any{"success": false, "error": err.Error()}
	}
	for k, v := range commonHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range sr.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.httpClient().Do(req)
	if err != nil {
		return map[string]any{"success": false, "error": err.Error(), "endpoint": sr.Endpoint}
	}
	defer resp.Body.Close()

	var respJSON any
	_ = json.NewDecoder(resp.Body).Decode(&respJSON)

	return map[string]any{
		"success":     resp.StatusCode < 400,
		"status_code": resp.StatusCode,
		"endpoint":    sr.Endpoint,
		"response":    respJSON,
	}
}

func resolveRequestURL(baseURL, endpoint string) string {
	lower := strings.ToLower(endpoint)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return endpoint
	}
	if baseURL == "" {
		return ""
	}
	if strings.HasPrefix(endpoint, "/") {
		return baseURL + endpoint
	}
	return baseURL + "/" + endpoint
}
