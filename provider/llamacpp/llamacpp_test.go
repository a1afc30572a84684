package llamacpp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/avendel/converse"
)

func TestChat_ParsesResponse(t *testing.T) {
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("got path %q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "hello back"}},
			},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 4},
		})
	}))
	defer srv.Close()

	p := New(srv.URL+"/v1", "test-model")
	resp, err := p.Chat(context.Background(), converse.ChatRequest{
		Messages: []converse.ChatMessage{
			converse.SystemMessage("be brief"),
			converse.UserMessage("hello"),
		},
		Params: &converse.GenerationParams{
			MaxTokens:   converse.IntPtr(64),
			Temperature: converse.Float64Ptr(0),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello back" {
		t.Errorf("got %q", resp.Content)
	}
	if resp.Usage.InputTokens != 12 || resp.Usage.OutputTokens != 4 {
		t.Errorf("got usage %+v", resp.Usage)
	}

	if gotBody.Model != "test-model" {
		t.Errorf("got model %q", gotBody.Model)
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[0].Role != "system" {
		t.Errorf("got messages %+v", gotBody.Messages)
	}
	if gotBody.MaxTokens != 64 {
		t.Errorf("got max_tokens %d", gotBody.MaxTokens)
	}
	if gotBody.Temperature == nil || *gotBody.Temperature != 0 {
		t.Errorf("got temperature %v", gotBody.Temperature)
	}
}

func TestChat_SendsAPIKey(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "ok"}}},
		})
	}))
	defer srv.Close()

	p := New(srv.URL+"/v1", "m", WithAPIKey("secret"))
	if _, err := p.Chat(context.Background(), converse.ChatRequest{}); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("got auth header %q", gotAuth)
	}
}

func TestChat_HTTPErrorWithRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading model"))
	}))
	defer srv.Close()

	p := New(srv.URL+"/v1", "m")
	_, err := p.Chat(context.Background(), converse.ChatRequest{})
	var httpErr *converse.ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("got %v, want ErrHTTP", err)
	}
	if httpErr.Status != 503 || httpErr.Body != "loading model" {
		t.Errorf("got %+v", httpErr)
	}
	if httpErr.RetryAfter != 7*time.Second {
		t.Errorf("got retry-after %v", httpErr.RetryAfter)
	}
}

func TestChat_NoChoicesIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	p := New(srv.URL+"/v1", "m")
	_, err := p.Chat(context.Background(), converse.ChatRequest{})
	var llmErr *converse.ErrLLM
	if !errors.As(err, &llmErr) {
		t.Fatalf("got %v, want ErrLLM", err)
	}
}

func TestEmbed_OrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("got path %q", r.URL.Path)
		}
		// Return entries out of order; the client must re-order by index.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{3, 4}},
				{"index": 0, "embedding": []float32{1, 2}},
			},
		})
	}))
	defer srv.Close()

	e := NewEmbedding(srv.URL+"/v1", "embed-model", 2)
	vecs, err := e.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors", len(vecs))
	}
	if vecs[0][0] != 1 || vecs[1][0] != 3 {
		t.Errorf("vectors not ordered by index: %v", vecs)
	}
}

func TestEmbed_DimensionMismatchIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float32{1, 2, 3}}},
		})
	}))
	defer srv.Close()

	e := NewEmbedding(srv.URL+"/v1", "m", 2)
	if _, err := e.Embed(context.Background(), []string{"x"}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestEmbed_CountMismatchIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float32{1, 2}}},
		})
	}))
	defer srv.Close()

	e := NewEmbedding(srv.URL+"/v1", "m", 2)
	if _, err := e.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected count mismatch error")
	}
}

func TestEmbed_EmptyInput(t *testing.T) {
	e := NewEmbedding("http://unused/v1", "m", 2)
	vecs, err := e.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vecs != nil {
		t.Errorf("got %v, want nil", vecs)
	}
}
