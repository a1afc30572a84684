// Package postgres implements converse.RecallStore and converse.Checkpointer
// using PostgreSQL with pgvector for native cosine similarity search.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avendel/converse"
)

// Store is a PostgreSQL-backed recall store and checkpointer.
// Vector search uses pgvector's cosine distance operator with an HNSW index.
type Store struct {
	pool *pgxpool.Pool
	cfg  pgConfig
}

type pgConfig struct {
	embeddingDimension int // 0 = untyped vector column
	hnswM              int // 0 = pgvector default (16)
	hnswEFConstruction int // 0 = pgvector default (64)
}

// Option configures a PostgreSQL Store.
type Option func(*pgConfig)

// WithEmbeddingDimension sets the vector column dimension (e.g. 768, 1536).
// When set, CREATE TABLE uses vector(N) instead of untyped vector, catching
// dimension mismatches at insert time. Only affects new table creation.
func WithEmbeddingDimension(dim int) Option {
	return func(c *pgConfig) { c.embeddingDimension = dim }
}

// WithHNSWM sets the HNSW m parameter (max connections per node).
// Higher values improve recall at the cost of memory. Default: pgvector's 16.
func WithHNSWM(m int) Option {
	return func(c *pgConfig) { c.hnswM = m }
}

// WithEFConstruction sets the HNSW ef_construction parameter. Higher values
// improve index quality at the cost of slower builds. Default: pgvector's 64.
func WithEFConstruction(ef int) Option {
	return func(c *pgConfig) { c.hnswEFConstruction = ef }
}

var _ converse.RecallStore = (*Store)(nil)
var _ converse.Checkpointer = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	var cfg pgConfig
	for _, o := range opts {
		o(&cfg)
	}
	return &Store{pool: pool, cfg: cfg}
}

func (s *Store) vectorType() string {
	if s.cfg.embeddingDimension > 0 {
		return fmt.Sprintf("vector(%d)", s.cfg.embeddingDimension)
	}
	return "vector"
}

func (s *Store) hnswWithClause() string {
	var parts []string
	if s.cfg.hnswM > 0 {
		parts = append(parts, fmt.Sprintf("m = %d", s.cfg.hnswM))
	}
	if s.cfg.hnswEFConstruction > 0 {
		parts = append(parts, fmt.Sprintf("ef_construction = %d", s.cfg.hnswEFConstruction))
	}
	if len(parts) == 0 {
		return ""
	}
	return " WITH (" + strings.Join(parts, ", ") + ")"
}

// Init creates the pgvector extension, tables, and HNSW index.
// Safe to call multiple times (all statements are idempotent).
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS recall_records (
			id TEXT PRIMARY KEY,
			user_prompt TEXT NOT NULL,
			response TEXT NOT NULL,
			description TEXT NOT NULL,
			embedding %s,
			created_at BIGINT NOT NULL
		)`, s.vectorType()),

		`CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id TEXT PRIMARY KEY,
			state JSONB NOT NULL,
			updated_at BIGINT NOT NULL
		)`,

		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_recall_embedding
			ON recall_records USING hnsw (embedding vector_cosine_ops)%s`, s.hnswWithClause()),
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

// Close is a no-op; the caller owns the pool.
func (s *Store) Close() error { return nil }

// Insert stores a recall record. Re-inserting an existing ID leaves the
// original row untouched.
func (s *Store) Insert(ctx context.Context, rec converse.RecallRecord) error {
	if len(rec.Embedding) > 0 {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO recall_records (id, user_prompt, response, description, embedding, created_at)
			 VALUES ($1, $2, $3, $4, $5::vector, $6)
			 ON CONFLICT (id) DO NOTHING`,
			rec.ID, rec.UserPrompt, rec.Response, rec.Description, serializeEmbedding(rec.Embedding), rec.CreatedAt)
		if err != nil {
			return fmt.Errorf("postgres: insert record: %w", err)
		}
		return nil
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO recall_records (id, user_prompt, response, description, embedding, created_at)
		 VALUES ($1, $2, $3, $4, NULL, $5)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.UserPrompt, rec.Response, rec.Description, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert record: %w", err)
	}
	return nil
}

// Search performs vector similarity search over recall records using
// pgvector's cosine distance operator.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int) ([]converse.ScoredRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_prompt, response, description, created_at,
		        1 - (embedding <=> $1::vector) AS score
		 FROM recall_records
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1::vector
		 LIMIT $2`,
		serializeEmbedding(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("postgres: search records: %w", err)
	}
	defer rows.Close()

	var results []converse.ScoredRecord
	for rows.Next() {
		var rec converse.RecallRecord
		var score float32
		if err := rows.Scan(&rec.ID, &rec.UserPrompt, &rec.Response, &rec.Description, &rec.CreatedAt, &score); err != nil {
			return nil, fmt.Errorf("postgres: scan record: %w", err)
		}
		results = append(results, converse.ScoredRecord{RecallRecord: rec, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate records: %w", err)
	}
	return results, nil
}

// Save stores the latest turn state for a thread, replacing any previous one.
func (s *Store) Save(ctx context.Context, threadID string, state converse.TurnState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("postgres: marshal checkpoint: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO checkpoints (thread_id, state, updated_at) VALUES ($1, $2::jsonb, $3)
		 ON CONFLICT (thread_id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		threadID, string(payload), converse.NowUnix())
	if err != nil {
		return fmt.Errorf("postgres: save checkpoint: %w", err)
	}
	return nil
}

// Load returns the latest turn state for a thread and whether one exists.
func (s *Store) Load(ctx context.Context, threadID string) (converse.TurnState, bool, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM checkpoints WHERE thread_id = $1`, threadID).Scan(&payload)
	if err == pgx.ErrNoRows {
		return converse.TurnState{}, false, nil
	}
	if err != nil {
		return converse.TurnState{}, false, fmt.Errorf("postgres: load checkpoint: %w", err)
	}

	var state converse.TurnState
	if err := json.Unmarshal(payload, &state); err != nil {
		return converse.TurnState{}, false, fmt.Errorf("postgres: unmarshal checkpoint: %w", err)
	}
	return state, true, nil
}

// serializeEmbedding renders a []float32 as a pgvector literal, e.g. "[1,2,3]".
func serializeEmbedding(embedding []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
