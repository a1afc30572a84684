package converse

import "context"

// RecallDescription is the fixed tag assigned to every stored turn record.
const RecallDescription = "Captured memory of past interactions"

// RecallRecord is one persisted conversation turn: the user prompt and the
// reply the assistant generated for it. Records are immutable once written;
// the store is append-only, and no update or delete operations exist.
type RecallRecord struct {
	ID          string    `json:"id"`
	UserPrompt  string    `json:"user_prompt"`
	Response    string    `json:"response"`
	Description string    `json:"description"`
	Embedding   []float32 `json:"-"`
	CreatedAt   int64     `json:"created_at"`
}

// Content returns the record's textual serialization, the form both embedded
// for similarity search and injected into prompts as a recall hint.
func (r RecallRecord) Content() string {
	return "{user prompt : " + r.UserPrompt + ", chatbot response : " + r.Response + "}"
}

// ScoredRecord pairs a recall record with its cosine similarity to a query.
type ScoredRecord struct {
	RecallRecord
	Score float32
}

// RecallStore is the semantic memory of past turns.
//
// Search returns the topK records most similar to the query embedding, sorted
// by Score descending. Ties are broken arbitrarily. Implementations must make
// Insert atomic under concurrent turns; no further isolation is required since
// records are never read-modified.
type RecallStore interface {
	Insert(ctx context.Context, rec RecallRecord) error
	Search(ctx context.Context, embedding []float32, topK int) ([]ScoredRecord, error)
	Init(ctx context.Context) error
	Close() error
}
