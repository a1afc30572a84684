// Package sqlite implements converse.RecallStore and converse.Checkpointer
// using pure-Go SQLite with in-process brute-force vector search. Zero CGO
// required; a single file holds both recall records and thread checkpoints.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/avendel/converse"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store. When set, the store
// emits debug logs for every operation including timing and row counts.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store is a SQLite-backed recall store and checkpointer. Embeddings are
// stored as JSON text and similarity search runs in process with brute-force
// cosine scoring, which is fine at single-user conversation scale.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ converse.RecallStore = (*Store)(nil)
var _ converse.Checkpointer = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates the recall and checkpoint tables. Safe to call repeatedly.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	tables := []string{
		`CREATE TABLE IF NOT EXISTS recall_records (
			id TEXT PRIMARY KEY,
			user_prompt TEXT NOT NULL,
			response TEXT NOT NULL,
			description TEXT NOT NULL,
			embedding TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	s.logger.Debug("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Insert stores a recall record. Re-inserting an existing ID leaves the
// original row untouched, so a retried persistence attempt cannot duplicate
// a turn.
func (s *Store) Insert(ctx context.Context, rec converse.RecallRecord) error {
	start := time.Now()

	var embJSON *string
	if len(rec.Embedding) > 0 {
		j := serializeEmbedding(rec.Embedding)
		embJSON = &j
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO recall_records (id, user_prompt, response, description, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserPrompt, rec.Response, rec.Description, embJSON, rec.CreatedAt)
	if err != nil {
		s.logger.Error("sqlite: insert record failed", "id", rec.ID, "error", err)
		return fmt.Errorf("insert record: %w", err)
	}

	s.logger.Debug("sqlite: record inserted", "id", rec.ID, "has_embedding", embJSON != nil, "duration", time.Since(start))
	return nil
}

// Search performs brute-force cosine similarity search over recall records.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int) ([]converse.ScoredRecord, error) {
	start := time.Now()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_prompt, response, description, embedding, created_at
		 FROM recall_records WHERE embedding IS NOT NULL`)
	if err != nil {
		s.logger.Error("sqlite: search records failed", "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("search records: %w", err)
	}
	defer rows.Close()

	var results []converse.ScoredRecord
	scanned := 0

	for rows.Next() {
		var rec converse.RecallRecord
		var embJSON string
		if err := rows.Scan(&rec.ID, &rec.UserPrompt, &rec.Response, &rec.Description, &embJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		scanned++
		stored, err := deserializeEmbedding(embJSON)
		if err != nil {
			continue
		}
		rec.Embedding = stored
		results = append(results, converse.ScoredRecord{
			RecallRecord: rec,
			Score:        cosineSimilarity(embedding, stored),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}

	s.logger.Debug("sqlite: search records ok", "scanned", scanned, "returned", len(results), "duration", time.Since(start))
	return results, nil
}

// Save stores the latest turn state for a thread, replacing any previous one.
func (s *Store) Save(ctx context.Context, threadID string, state converse.TurnState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (thread_id, state, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(thread_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		threadID, string(payload), converse.NowUnix())
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Load returns the latest turn state for a thread and whether one exists.
func (s *Store) Load(ctx context.Context, threadID string) (converse.TurnState, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM checkpoints WHERE thread_id = ?`, threadID).Scan(&payload)
	if err == sql.ErrNoRows {
		return converse.TurnState{}, false, nil
	}
	if err != nil {
		return converse.TurnState{}, false, fmt.Errorf("load checkpoint: %w", err)
	}

	var state converse.TurnState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return converse.TurnState{}, false, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return state, true, nil
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

// serializeEmbedding converts []float32 to a JSON array string.
func serializeEmbedding(embedding []float32) string {
	data, _ := json.Marshal(embedding)
	return string(data)
}

// deserializeEmbedding parses a JSON array string back into []float32.
func deserializeEmbedding(s string) ([]float32, error) {
	var out []float32
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}
