package memory

import (
	"context"
	"testing"

	"github.com/avendel/converse"
)

func TestInsertAndSearch(t *testing.T) {
	s := New()
	ctx := context.Background()

	records := []converse.RecallRecord{
		{ID: "a", UserPrompt: "pa", Response: "ra", Embedding: []float32{1, 0}},
		{ID: "b", UserPrompt: "pb", Response: "rb", Embedding: []float32{0, 1}},
		{ID: "c", UserPrompt: "pc", Response: "rc", Embedding: []float32{1, 1}},
	}
	for _, rec := range records {
		if err := s.Insert(ctx, rec); err != nil {
			t.Fatalf("insert %s: %v", rec.ID, err)
		}
	}

	got, err := s.Search(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].ID != "a" {
		t.Errorf("best match is %q, want a", got[0].ID)
	}
	if got[1].ID != "c" {
		t.Errorf("second match is %q, want c", got[1].ID)
	}
	if got[0].Score <= got[1].Score {
		t.Errorf("results not sorted: %v then %v", got[0].Score, got[1].Score)
	}
}

func TestInsertIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	rec := converse.RecallRecord{ID: "a", UserPrompt: "p", Response: "r", Embedding: []float32{1, 0}}
	if err := s.Insert(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 1 {
		t.Errorf("got %d records, want 1", s.Len())
	}
}

func TestSearchSkipsRecordsWithoutEmbedding(t *testing.T) {
	s := New()
	ctx := context.Background()

	_ = s.Insert(ctx, converse.RecallRecord{ID: "no-emb", UserPrompt: "p", Response: "r"})
	_ = s.Insert(ctx, converse.RecallRecord{ID: "emb", UserPrompt: "p", Response: "r", Embedding: []float32{1, 0}})

	got, err := s.Search(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "emb" {
		t.Errorf("got %v", got)
	}
}

func TestSearchEmptyStore(t *testing.T) {
	s := New()
	got, err := s.Search(context.Background(), []float32{1, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %d results, want 0", len(got))
	}
}
