package converse

import (
	"context"
	"math"
	"sync"
)

// scriptProvider is a test Provider that returns pre-configured results in
// call order and records every request it receives.
type scriptProvider struct {
	mu       sync.Mutex
	requests []ChatRequest
	results  []scriptResult
}

type scriptResult struct {
	resp ChatResponse
	err  error
}

func (s *scriptProvider) Name() string { return "script" }

func (s *scriptProvider) Chat(_ context.Context, req ChatRequest) (ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.requests)
	s.requests = append(s.requests, req)
	if i < len(s.results) {
		return s.results[i].resp, s.results[i].err
	}
	return ChatResponse{}, nil
}

func (s *scriptProvider) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// userPrompt returns the user-role content of the i-th recorded request.
func (s *scriptProvider) userPrompt(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.requests[i].Messages {
		if m.Role == "user" {
			return m.Content
		}
	}
	return ""
}

var _ Provider = (*scriptProvider)(nil)

// stubEmbedding returns the same fixed vector for every text, so any stored
// record scores 1.0 against any query. Override vectors per text to steer
// similarity in threshold tests.
type stubEmbedding struct {
	mu      sync.Mutex
	vectors map[string][]float32
	base    []float32
	err     error
	calls   int
}

func newStubEmbedding() *stubEmbedding {
	return &stubEmbedding{base: []float32{1, 0}}
}

func (s *stubEmbedding) Name() string    { return "stub-embed" }
func (s *stubEmbedding) Dimensions() int { return len(s.base) }

func (s *stubEmbedding) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := s.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = s.base
		}
	}
	return out, nil
}

var _ EmbeddingProvider = (*stubEmbedding)(nil)

// stubRecallStore keeps records in a slice with brute-force cosine search.
type stubRecallStore struct {
	mu        sync.Mutex
	records   []RecallRecord
	insertErr error
	searchErr error
}

func (s *stubRecallStore) Init(context.Context) error { return nil }
func (s *stubRecallStore) Close() error               { return nil }

func (s *stubRecallStore) Insert(_ context.Context, rec RecallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	for _, existing := range s.records {
		if existing.ID == rec.ID {
			return nil
		}
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *stubRecallStore) Search(_ context.Context, embedding []float32, topK int) ([]ScoredRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	var out []ScoredRecord
	for _, rec := range s.records {
		if len(rec.Embedding) == 0 {
			continue
		}
		out = append(out, ScoredRecord{RecallRecord: rec, Score: cosine(embedding, rec.Embedding)})
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Score > out[i].Score {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (s *stubRecallStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *stubRecallStore) record(i int) RecallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[i]
}

var _ RecallStore = (*stubRecallStore)(nil)

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(na) * math.Sqrt(nb)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}

// stubSearcher records queries and returns canned results or an error.
type stubSearcher struct {
	mu      sync.Mutex
	queries []string
	results []WebResult
	err     error
}

func (s *stubSearcher) Search(_ context.Context, query string, maxResults int, _ bool) ([]WebResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	out := s.results
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

func (s *stubSearcher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

var _ Searcher = (*stubSearcher)(nil)
