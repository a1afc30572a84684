package converse

import (
	"context"
	"sync"
)

// Exchange is one completed turn of a session: what the user said and what
// came back.
type Exchange struct {
	UserPrompt string
	Response   string
}

// Session binds an Orchestrator to a single conversation thread and keeps a
// local transcript. All turns of a Session share the same thread ID, so
// checkpoints and recall accumulate across Send calls.
//
// A Session serializes its own turns; concurrent Send calls on the same
// Session block each other. Use separate Sessions for separate dialogues.
type Session struct {
	orchestrator *Orchestrator
	threadID     string

	mu      sync.Mutex
	history []Exchange
}

// NewSession creates a session over the orchestrator for the given thread.
// If threadID is empty a fresh one is generated.
func NewSession(o *Orchestrator, threadID string) *Session {
	if threadID == "" {
		threadID = NewID()
	}
	return &Session{orchestrator: o, threadID: threadID}
}

// ThreadID returns the thread this session runs under.
func (s *Session) ThreadID() string { return s.threadID }

// Send runs one turn with the given user text and returns the reply.
// The exchange is appended to the transcript only on success.
func (s *Session) Send(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.orchestrator.Run(ctx, TurnTask{ThreadID: s.threadID, UserPrompt: text})
	if err != nil {
		return "", err
	}

	s.history = append(s.history, Exchange{UserPrompt: text, Response: result.State.FinalResult})
	return result.State.FinalResult, nil
}

// Transcript returns a copy of the completed exchanges in order.
func (s *Session) Transcript() []Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Exchange, len(s.history))
	copy(out, s.history)
	return out
}
