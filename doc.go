// Package converse is a framework for building local conversational assistants
// that augment a language model with long-term semantic recall and conditional
// web search.
//
// The core of the package is the turn [Orchestrator]: an explicit finite state
// machine that processes one user turn at a time. Each turn loads semantically
// related past exchanges from a [RecallStore], asks the model whether the prompt
// needs a real-time web search, optionally rewrites the prompt into a keyword
// query and runs it through a [Searcher], generates the final reply from the
// combined context, and persists the exchange back into memory.
//
// # Quick Start
//
//	llm := converse.WithRetry(llamacpp.New("http://localhost:8080/v1", "gemma-3"))
//	embedding := llamacpp.NewEmbedding("http://localhost:8080/v1", "all-mpnet", 768)
//	store := memstore.New()
//	searcher := tavily.New(apiKey)
//
//	orch := converse.NewOrchestrator(llm, embedding, store, searcher)
//	session := converse.NewSession(orch, "thread-1")
//
//	reply, err := session.Send(ctx, "What is the current USD to EUR rate?")
//
// # Core Interfaces
//
// The root package defines the contracts that all components implement:
//
//   - [Provider]: LLM backend (chat-style generation)
//   - [EmbeddingProvider]: text-to-vector embedding
//   - [RecallStore]: append-only semantic memory of past turns
//   - [Searcher]: web search capability
//   - [Checkpointer]: per-thread turn-state persistence
//
// # Included Implementations
//
// Providers: provider/llamacpp (any OpenAI-compatible local server).
// Storage: store/memory (in-process), store/sqlite (local file),
// store/postgres (pgvector). Search: tools/tavily.
// Observability: observer (OTEL-backed Tracer).
//
// See the cmd/converse directory for a complete terminal chat application.
package converse
