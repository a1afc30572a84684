package converse

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithRetry_Chat_SucceedsFirstAttempt(t *testing.T) {
	stub := &scriptProvider{results: []scriptResult{
		{resp: ChatResponse{Content: "hello"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0))

	resp, err := p.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("got %q, want %q", resp.Content, "hello")
	}
	if stub.calls() != 1 {
		t.Errorf("got %d calls, want 1", stub.calls())
	}
}

func TestWithRetry_Chat_RetriesOn503(t *testing.T) {
	stub := &scriptProvider{results: []scriptResult{
		{err: &ErrHTTP{Status: 503, Body: "unavailable"}},
		{resp: ChatResponse{Content: "hello"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0))

	resp, err := p.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("got %q, want %q", resp.Content, "hello")
	}
	if stub.calls() != 2 {
		t.Errorf("got %d calls, want 2", stub.calls())
	}
}

func TestWithRetry_Chat_RetriesOn429(t *testing.T) {
	stub := &scriptProvider{results: []scriptResult{
		{err: &ErrHTTP{Status: 429, Body: "rate limited"}},
		{resp: ChatResponse{Content: "ok"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0))

	if _, err := p.Chat(context.Background(), ChatRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.calls() != 2 {
		t.Errorf("got %d calls, want 2", stub.calls())
	}
}

func TestWithRetry_Chat_DoesNotRetryNonTransient(t *testing.T) {
	stub := &scriptProvider{results: []scriptResult{
		{err: &ErrHTTP{Status: 400, Body: "bad request"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0))

	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("expected error")
	}
	if stub.calls() != 1 {
		t.Errorf("got %d calls, want 1", stub.calls())
	}
}

func TestWithRetry_Chat_DoesNotRetryLLMError(t *testing.T) {
	stub := &scriptProvider{results: []scriptResult{
		{err: &ErrLLM{Provider: "script", Message: "bad output"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0))

	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("expected error")
	}
	if stub.calls() != 1 {
		t.Errorf("got %d calls, want 1", stub.calls())
	}
}

func TestWithRetry_Chat_ExhaustsMaxAttempts(t *testing.T) {
	stub := &scriptProvider{results: []scriptResult{
		{err: &ErrHTTP{Status: 503}},
		{err: &ErrHTTP{Status: 503}},
		{err: &ErrHTTP{Status: 503}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0), RetryMaxAttempts(3))

	_, err := p.Chat(context.Background(), ChatRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	var httpErr *ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Errorf("got %v, want ErrHTTP", err)
	}
	if stub.calls() != 3 {
		t.Errorf("got %d calls, want 3", stub.calls())
	}
}

func TestWithRetry_Chat_RespectsRetryAfter(t *testing.T) {
	stub := &scriptProvider{results: []scriptResult{
		{err: &ErrHTTP{Status: 429, RetryAfter: 50 * time.Millisecond}},
		{resp: ChatResponse{Content: "ok"}},
	}}
	p := WithRetry(stub, RetryBaseDelay(0))

	start := time.Now()
	if _, err := p.Chat(context.Background(), ChatRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("retried after %v, want at least 50ms", elapsed)
	}
}

func TestWithRetry_Chat_ContextCancelStopsRetry(t *testing.T) {
	stub := &scriptProvider{results: []scriptResult{
		{err: &ErrHTTP{Status: 503}},
	}}
	p := WithRetry(stub, RetryBaseDelay(10*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := p.Chat(ctx, ChatRequest{}); err == nil {
		t.Fatal("expected error")
	}
	if stub.calls() != 1 {
		t.Errorf("got %d calls, want 1", stub.calls())
	}
}

func TestWithEmbeddingRetry_RetriesOn503(t *testing.T) {
	calls := 0
	stub := &funcEmbedding{fn: func() ([][]float32, error) {
		calls++
		if calls == 1 {
			return nil, &ErrHTTP{Status: 503}
		}
		return [][]float32{{1, 2}}, nil
	}}
	e := WithEmbeddingRetry(stub, RetryBaseDelay(0))

	vecs, err := e.Embed(context.Background(), []string{"x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 1 || calls != 2 {
		t.Errorf("got %d vectors after %d calls", len(vecs), calls)
	}
}

func TestWithEmbeddingRetry_PreservesMetadata(t *testing.T) {
	stub := &funcEmbedding{fn: func() ([][]float32, error) { return nil, nil }}
	e := WithEmbeddingRetry(stub)
	if e.Name() != "func-embed" {
		t.Errorf("got %q", e.Name())
	}
	if e.Dimensions() != 2 {
		t.Errorf("got %d", e.Dimensions())
	}
}

// funcEmbedding adapts a closure to EmbeddingProvider for retry tests.
type funcEmbedding struct {
	fn func() ([][]float32, error)
}

func (f *funcEmbedding) Name() string    { return "func-embed" }
func (f *funcEmbedding) Dimensions() int { return 2 }
func (f *funcEmbedding) Embed(context.Context, []string) ([][]float32, error) {
	return f.fn()
}
