// Package llm wraps the engine's one external collaborator: the LLM
// provider behind the `gigachat` node type and the Dispatcher's
// classification/planning calls. The core only ever depends on the
// ChatClient interface; this package's concrete implementation is an
// adapter, not part of the execution engine itself.
package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Message is one turn in a chat completion request.
type Message struct {
	Role    string
	Content string
}

// ChatClient is the opaque interface every LLM-backed node and the
// Dispatcher's planning/classification calls consume. A failed chat
// completion returns an error; callers decide whether to fall back.
type ChatClient interface {
	GetToken(ctx context.Context) (string, error)
	ChatCompletion(ctx context.Context, messages []Message) (string, error)
	Embedding(ctx context.Context, input string) ([]float64, error)
}

// Config describes how to reach an OpenAI-compatible chat endpoint that
// gates access behind an OAuth2 client-credentials token (GigaChat's auth
// model), rather than a static API key.
type Config struct {
	AuthURL      string // token endpoint
	BaseURL      string // chat/embeddings API base
	ClientID     string
	ClientSecret string
	Scope        string
	Model        string
	Timeout      time.Duration
}

// gigaChatClient implements ChatClient against an OpenAI-wire-compatible
// endpoint, refreshing its bearer token on demand and retrying exactly once
// after a 401.
type gigaChatClient struct {
	cfg Config

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// New constructs a ChatClient for the given configuration.
func New(cfg Config) ChatClient {
	if cfg.Model == "" {
		cfg.Model = "GigaChat"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &gigaChatClient{cfg: cfg}
}

// GetToken returns a cached bearer token, fetching a fresh one if expired
// or absent. Safe for concurrent use.
func (c *gigaChatClient) GetToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.expiresAt) {
		return c.token, nil
	}
	tok, exp, err := c.fetchToken(ctx)
	if err != nil {
		return "", fmt.Errorf("llm: token refresh: %w", err)
	}
	c.token = tok
	c.expiresAt = exp
	return tok, nil
}

// forceRefresh discards the cached token, used after a 401.
func (c *gigaChatClient) forceRefresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	return c.GetToken(ctx)
}

func (c *gigaChatClient) client(token string) *openai.Client {
	oaCfg := openai.DefaultConfig(token)
	if c.cfg.BaseURL != "" {
		oaCfg.BaseURL = c.cfg.BaseURL
	}
	oaCfg.HTTPClient.Timeout = c.cfg.Timeout
	return openai.NewClientWithConfig(oaCfg)
}

// ChatCompletion sends a single chat request, refreshing and retrying once
// if the provider reports unauthorized.
func (c *gigaChatClient) ChatCompletion(ctx context.Context, messages []Message) (string, error) {
	token, err := c.GetToken(ctx)
	if err != nil {
		return "", err
	}
	text, err := c.doCompletion(ctx, token, messages)
	if isUnauthorized(err) {
		token, rerr := c.forceRefresh(ctx)
		if rerr != nil {
			return "", rerr
		}
		return c.doCompletion(ctx, token, messages)
	}
	return text, err
}

func (c *gigaChatClient) doCompletion(ctx context.Context, token string, messages []Message) (string, error) {
	cl := c.client(token)
	req := openai.ChatCompletionRequest{
		Model:    c.cfg.Model,
		Messages: toOpenAIMessages(messages),
	}
	resp, err := cl.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embedding requests a vector embedding for a single input string.
func (c *gigaChatClient) Embedding(ctx context.Context, input string) ([]float64, error) {
	token, err := c.GetToken(ctx)
	if err != nil {
		return nil, err
	}
	vec, err := c.doEmbedding(ctx, token, input)
	if isUnauthorized(err) {
		token, rerr := c.forceRefresh(ctx)
		if rerr != nil {
			return nil, rerr
		}
		return c.doEmbedding(ctx, token, input)
	}
	return vec, err
}

func (c *gigaChatClient) doEmbedding(ctx context.Context, token, input string) ([]float64, error) {
	cl := c.client(token)
	resp, err := cl.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{input},
		Model: openai.EmbeddingModel(c.cfg.Model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("llm: empty embedding response")
	}
	out := make([]float64, len(resp.Data[0].Embedding))
	for i, f := range resp.Data[0].Embedding {
		out[i] = float64(f)
	}
	return out, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

func isUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if ok := asAPIError(err, &apiErr); ok {
		return apiErr.HTTPStatusCode == 401
	}
	return false
}

func asAPIError(err error, target **openai.APIError) bool {
	apiErr, ok := err.(*openai.APIError)
	if ok {
		*target = apiErr
	}
	return ok
}
