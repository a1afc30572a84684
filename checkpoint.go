package converse

import (
	"context"
	"sync"
)

// Checkpointer persists the latest TurnState per conversation thread.
//
// The orchestrator writes a checkpoint exactly once per turn, after the turn
// completes; Load returns the most recent state and whether one exists.
// Checkpoints are not designed for concurrent writers on the same thread ID;
// one turn per thread runs to completion before the next begins.
type Checkpointer interface {
	Save(ctx context.Context, threadID string, state TurnState) error
	Load(ctx context.Context, threadID string) (TurnState, bool, error)
}

// MemoryCheckpointer keeps per-thread state in process memory. It is the
// default checkpointer and is safe for concurrent use across threads.
// State is lost on restart; use store/sqlite for durable checkpoints.
type MemoryCheckpointer struct {
	mu     sync.RWMutex
	states map[string]TurnState
}

var _ Checkpointer = (*MemoryCheckpointer)(nil)

// NewMemoryCheckpointer creates an empty in-process checkpointer.
func NewMemoryCheckpointer() *MemoryCheckpointer {
	return &MemoryCheckpointer{states: make(map[string]TurnState)}
}

// Save stores the state for the thread, replacing any previous checkpoint.
func (m *MemoryCheckpointer) Save(_ context.Context, threadID string, state TurnState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[threadID] = state
	return nil
}

// Load returns the latest state for the thread and whether one exists.
func (m *MemoryCheckpointer) Load(_ context.Context, threadID string) (TurnState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[threadID]
	return state, ok, nil
}
