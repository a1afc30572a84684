// Package llamacpp implements converse.Provider and converse.EmbeddingProvider
// against the OpenAI-compatible HTTP server of llama.cpp (llama-server).
//
// Because the wire format is plain OpenAI chat completions, the same client
// also works with Ollama, vLLM, LM Studio, and any other local runner that
// exposes that API. baseURL is the API base including the version prefix,
// e.g. "http://localhost:8080/v1".
package llamacpp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/avendel/converse"
)

const defaultName = "llamacpp"

// Provider is a chat client for a llama.cpp server.
type Provider struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
	name    string
}

// Option configures a Provider or an Embedding.
type Option func(*settings)

type settings struct {
	apiKey string
	client *http.Client
	name   string
}

// WithAPIKey sets the bearer token. llama.cpp only checks it when started
// with --api-key; hosted OpenAI-compatible gateways usually require it.
func WithAPIKey(key string) Option {
	return func(s *settings) { s.apiKey = key }
}

// WithHTTPClient sets a custom HTTP client (timeouts, proxies).
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.client = c }
}

// WithName overrides the provider name reported in errors and logs.
func WithName(name string) Option {
	return func(s *settings) { s.name = name }
}

func applyOptions(opts []Option) settings {
	s := settings{client: &http.Client{}, name: defaultName}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// New creates a chat provider for the llama.cpp server at baseURL.
// model selects the loaded model; llama-server ignores it when it serves a
// single model, but it must still be non-empty for gateways that route on it.
func New(baseURL, model string, opts ...Option) *Provider {
	s := applyOptions(opts)
	return &Provider{
		baseURL: baseURL,
		model:   model,
		apiKey:  s.apiKey,
		client:  s.client,
		name:    s.name,
	}
}

// Name returns the provider name (default "llamacpp").
func (p *Provider) Name() string { return p.name }

// Chat sends a non-streaming chat completion request.
func (p *Provider) Chat(ctx context.Context, req converse.ChatRequest) (converse.ChatResponse, error) {
	body := chatRequest{Model: p.model}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, wireMessage{Role: m.Role, Content: m.Content})
	}
	if req.Params != nil {
		if req.Params.MaxTokens != nil {
			body.MaxTokens = *req.Params.MaxTokens
		}
		body.Temperature = req.Params.Temperature
		body.Seed = req.Params.Seed
	}

	respBody, err := postJSON(ctx, p.client, p.baseURL+"/chat/completions", p.apiKey, p.name, body)
	if err != nil {
		return converse.ChatResponse{}, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return converse.ChatResponse{}, &converse.ErrLLM{Provider: p.name, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if len(parsed.Choices) == 0 {
		return converse.ChatResponse{}, &converse.ErrLLM{Provider: p.name, Message: "response has no choices"}
	}

	out := converse.ChatResponse{Content: parsed.Choices[0].Message.Content}
	if parsed.Usage != nil {
		out.Usage = converse.Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
		}
	}
	return out, nil
}

// Embedding is an embedding client for a llama.cpp server running an
// embedding model (llama-server --embedding).
type Embedding struct {
	baseURL string
	model   string
	dims    int
	apiKey  string
	client  *http.Client
	name    string
}

// NewEmbedding creates an embedding provider. dims must match the loaded
// model's output dimensionality; stores validate vectors against it.
func NewEmbedding(baseURL, model string, dims int, opts ...Option) *Embedding {
	s := applyOptions(opts)
	return &Embedding{
		baseURL: baseURL,
		model:   model,
		dims:    dims,
		apiKey:  s.apiKey,
		client:  s.client,
		name:    s.name,
	}
}

// Name returns the provider name (default "llamacpp").
func (e *Embedding) Name() string { return e.name }

// Dimensions returns the configured embedding dimensionality.
func (e *Embedding) Dimensions() int { return e.dims }

// Embed embeds all texts in one request and returns vectors in input order.
func (e *Embedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body := embedRequest{Model: e.model, Input: texts}
	respBody, err := postJSON(ctx, e.client, e.baseURL+"/embeddings", e.apiKey, e.name, body)
	if err != nil {
		return nil, err
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &converse.ErrLLM{Provider: e.name, Message: fmt.Sprintf("decode embed response: %v", err)}
	}
	if len(parsed.Data) != len(texts) {
		return nil, &converse.ErrLLM{Provider: e.name, Message: fmt.Sprintf("embedded %d of %d inputs", len(parsed.Data), len(texts))}
	}

	// The API may return entries out of order; index is authoritative.
	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, &converse.ErrLLM{Provider: e.name, Message: fmt.Sprintf("embedding index %d out of range", d.Index)}
		}
		if e.dims > 0 && len(d.Embedding) != e.dims {
			return nil, &converse.ErrLLM{Provider: e.name, Message: fmt.Sprintf("embedding has %d dimensions, want %d", len(d.Embedding), e.dims)}
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// postJSON sends a JSON POST and returns the raw body of a 200 response.
// Non-200 responses become ErrHTTP with the Retry-After header parsed, so
// converse.WithRetry can honor server-directed backoff.
func postJSON(ctx context.Context, client *http.Client, url, apiKey, name string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &converse.ErrLLM{Provider: name, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &converse.ErrLLM{Provider: name, Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &converse.ErrLLM{Provider: name, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &converse.ErrLLM{Provider: name, Message: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &converse.ErrHTTP{
			Status:     resp.StatusCode,
			Body:       string(respBody),
			RetryAfter: converse.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return respBody, nil
}

// --- Wire types ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	Seed        *int          `json:"seed,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Compile-time interface checks.
var (
	_ converse.Provider          = (*Provider)(nil)
	_ converse.EmbeddingProvider = (*Embedding)(nil)
)
