// Package memory implements converse.RecallStore entirely in process memory.
// It is the default for demos and tests; nothing survives a restart.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/avendel/converse"
)

// Store holds recall records in a slice and answers similarity queries by
// brute-force cosine scan. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records []converse.RecallRecord
	ids     map[string]struct{}
}

var _ converse.RecallStore = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{ids: make(map[string]struct{})}
}

// Init is a no-op; the store needs no setup.
func (s *Store) Init(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Insert appends the record. Re-inserting an existing ID is a no-op, so a
// retried persistence attempt cannot duplicate a turn.
func (s *Store) Insert(_ context.Context, rec converse.RecallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[rec.ID]; ok {
		return nil
	}
	s.ids[rec.ID] = struct{}{}
	s.records = append(s.records, rec)
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Search scores every stored record against the query embedding and returns
// the topK best, highest score first. Records without an embedding are skipped.
func (s *Store) Search(_ context.Context, embedding []float32, topK int) ([]converse.ScoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []converse.ScoredRecord
	for _, rec := range s.records {
		if len(rec.Embedding) == 0 {
			continue
		}
		results = append(results, converse.ScoredRecord{
			RecallRecord: rec,
			Score:        cosineSimilarity(embedding, rec.Embedding),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}
