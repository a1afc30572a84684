package converse

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// NoResultsSentinel is substituted for the web search result when the search
// tool returns nothing or fails. The turn continues with a degraded prompt
// instead of surfacing the failure to the user.
const NoResultsSentinel = "No results found."

// TurnState is the per-turn conversation state threaded through the
// orchestrator's steps and checkpointed per thread after each turn.
//
// Exactly one of the direct or search branches executes per turn:
// WebSearchQuery and WebSearchResult are populated if and only if
// WebSearchRequired is true, and FinalResult is written exactly once.
type TurnState struct {
	UserPrompt        string   `json:"user_prompt"`
	RecallMemories    []string `json:"recall_memories,omitempty"`
	WebSearchRequired bool     `json:"is_web_search_required"`
	WebSearchQuery    string   `json:"web_search_query,omitempty"`
	WebSearchResult   string   `json:"web_search_result,omitempty"`
	FinalResult       string   `json:"final_result"`
}

// TurnTask is the input to one orchestrator turn.
type TurnTask struct {
	// ThreadID scopes checkpointed state across turns of the same dialogue.
	ThreadID string
	// UserPrompt is the user's message for this turn.
	UserPrompt string
}

// TurnResult is the output of one orchestrator turn.
type TurnResult struct {
	// State is the final turn state; State.FinalResult carries the reply.
	State TurnState
	// Usage aggregates token usage across all LLM calls in the turn.
	Usage Usage
}

// turnStep identifies a state in the turn state machine.
type turnStep string

const (
	stepLoadMemory       turnStep = "load_memory"
	stepDecide           turnStep = "decide"
	stepGenerateQuery    turnStep = "generate_web_search_query"
	stepWebSearch        turnStep = "web_search_tool"
	stepGenerateResponse turnStep = "generate_final_response"
	stepSaveMemory       turnStep = "save_memory"
	stepDone             turnStep = "done"
)

// turnRun bundles the mutable state of one in-flight turn.
type turnRun struct {
	state TurnState
	usage Usage
}

// stepFunc executes one state and returns the next. Returning an error
// aborts the turn; only generation failures do that. Recall and search
// failures degrade into valid transitions instead.
type stepFunc func(ctx context.Context, run *turnRun) (turnStep, error)

const (
	defaultRecallK           = 1
	defaultMinScore          = 0.60
	defaultStepTimeout       = 60 * time.Second
	defaultMaxResponseTokens = 512
	defaultTemperature       = 0.7
	defaultSearchMaxResults  = 1

	decisionMaxTokens = 8
	queryMaxTokens    = 64
)

// Orchestrator runs the per-turn conversation state machine:
// load_memory → decide → [generate_web_search_query → web_search_tool] →
// generate_final_response → save_memory. Transitions are held in an explicit
// table keyed by step name; the only conditional edge is the decide route.
//
// One Run call processes exactly one turn to completion. Runs for distinct
// threads may proceed concurrently; the same thread must not be run
// concurrently (checkpoints assume a single writer per thread).
type Orchestrator struct {
	provider  Provider
	embedding EmbeddingProvider
	store     RecallStore
	searcher  Searcher

	checkpoints Checkpointer

	recallK           int
	minScore          float32 // 0 disables threshold filtering (unconditional top-k)
	stepTimeout       time.Duration
	maxResponseTokens int
	temperature       float64
	searchMaxResults  int

	logger *slog.Logger
	tracer Tracer

	handlers map[turnStep]stepFunc
	persists sync.WaitGroup // in-flight background memory writes
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithRecallK sets how many past records the memory lookup retrieves (default 1).
func WithRecallK(k int) OrchestratorOption {
	return func(o *Orchestrator) { o.recallK = k }
}

// WithMinScore sets the minimum cosine similarity for a recalled record to be
// injected into the prompt (default 0.60). Passing 0 disables filtering and
// keeps the top-k results unconditionally.
func WithMinScore(score float32) OrchestratorOption {
	return func(o *Orchestrator) { o.minScore = score }
}

// WithCheckpointer sets the per-thread state store (default: in-process
// MemoryCheckpointer). Use store/sqlite for checkpoints that survive restarts.
func WithCheckpointer(c Checkpointer) OrchestratorOption {
	return func(o *Orchestrator) { o.checkpoints = c }
}

// WithStepTimeout bounds each generator call within a turn (default 60s).
// Passing 0 disables the per-step deadline.
func WithStepTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.stepTimeout = d }
}

// WithMaxResponseTokens caps the final response generation (default 512).
func WithMaxResponseTokens(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.maxResponseTokens = n }
}

// WithTemperature sets the sampling temperature for final response generation
// (default 0.7). The decision and query-rewrite steps always run at 0.
func WithTemperature(t float64) OrchestratorOption {
	return func(o *Orchestrator) { o.temperature = t }
}

// WithSearchMaxResults sets how many results the web search requests (default 1).
func WithSearchMaxResults(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.searchMaxResults = n }
}

// WithLogger sets the structured logger. If not set, a no-op logger is used.
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// WithTracer sets the tracer. When set, the orchestrator emits one span per
// turn and one per step. Use observer.NewTracer() for an OTEL-backed
// implementation.
func WithTracer(t Tracer) OrchestratorOption {
	return func(o *Orchestrator) { o.tracer = t }
}

// nopLogger is a logger that discards all output. Used when WithLogger is not set.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// NewOrchestrator creates a turn orchestrator over the four leaf adapters.
func NewOrchestrator(provider Provider, embedding EmbeddingProvider, store RecallStore, searcher Searcher, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		provider:          provider,
		embedding:         embedding,
		store:             store,
		searcher:          searcher,
		recallK:           defaultRecallK,
		minScore:          defaultMinScore,
		stepTimeout:       defaultStepTimeout,
		maxResponseTokens: defaultMaxResponseTokens,
		temperature:       defaultTemperature,
		searchMaxResults:  defaultSearchMaxResults,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.checkpoints == nil {
		o.checkpoints = NewMemoryCheckpointer()
	}
	if o.logger == nil {
		o.logger = nopLogger
	}

	o.handlers = map[turnStep]stepFunc{
		stepLoadMemory:       o.loadMemory,
		stepDecide:           o.decide,
		stepGenerateQuery:    o.generateQuery,
		stepWebSearch:        o.webSearch,
		stepGenerateResponse: o.generateResponse,
		stepSaveMemory:       o.saveMemory,
	}

	return o
}

// Run processes one turn to completion and returns the final state.
// Generation failures abort the turn; recall and search failures degrade
// (empty recall, sentinel result) and the turn still completes.
func (o *Orchestrator) Run(ctx context.Context, task TurnTask) (TurnResult, error) {
	if strings.TrimSpace(task.UserPrompt) == "" {
		return TurnResult{}, fmt.Errorf("turn: empty user prompt")
	}

	var span Span
	if o.tracer != nil {
		ctx, span = o.tracer.Start(ctx, "turn.run",
			StringAttr("thread_id", task.ThreadID))
		defer span.End()
	}

	if _, ok, err := o.checkpoints.Load(ctx, task.ThreadID); err != nil {
		o.logger.Warn("load checkpoint", "thread_id", task.ThreadID, "error", err)
	} else if ok {
		o.logger.Debug("resuming thread", "thread_id", task.ThreadID)
	}

	run := &turnRun{state: TurnState{UserPrompt: task.UserPrompt}}

	for step := stepLoadMemory; step != stepDone; {
		handler, ok := o.handlers[step]
		if !ok {
			return TurnResult{}, fmt.Errorf("turn: unknown step %q", step)
		}

		next, err := o.executeStep(ctx, step, handler, run)
		if err != nil {
			if span != nil {
				span.Error(err)
			}
			return TurnResult{}, fmt.Errorf("turn: step %s: %w", step, err)
		}
		step = next
	}

	// The reply is final at this point; a checkpoint failure must not undo it.
	if err := o.checkpoints.Save(ctx, task.ThreadID, run.state); err != nil {
		o.logger.Error("save checkpoint", "thread_id", task.ThreadID, "error", err)
	}

	if span != nil {
		span.SetAttr(
			BoolAttr("web_search_required", run.state.WebSearchRequired),
			IntAttr("recall_count", len(run.state.RecallMemories)))
	}

	return TurnResult{State: run.state, Usage: run.usage}, nil
}

// LastState returns the checkpointed state of the most recent completed turn
// for the given thread, and whether one exists.
func (o *Orchestrator) LastState(ctx context.Context, threadID string) (TurnState, bool, error) {
	return o.checkpoints.Load(ctx, threadID)
}

// Drain waits for all in-flight background memory writes to finish.
// Call during shutdown to ensure the last turn is persisted.
func (o *Orchestrator) Drain() { o.persists.Wait() }

// executeStep runs a single step with logging and tracing around it.
func (o *Orchestrator) executeStep(ctx context.Context, step turnStep, handler stepFunc, run *turnRun) (turnStep, error) {
	start := time.Now()

	var span Span
	if o.tracer != nil {
		ctx, span = o.tracer.Start(ctx, "turn.step", StringAttr("step", string(step)))
		defer span.End()
	}

	next, err := handler(ctx, run)
	if err != nil {
		if span != nil {
			span.Error(err)
		}
		o.logger.Error("step failed", "step", step, "error", err)
		return "", err
	}

	o.logger.Debug("step completed", "step", step, "next", next, "duration", time.Since(start))
	return next, nil
}

// chat issues a bounded generation call and accumulates its token usage.
func (o *Orchestrator) chat(ctx context.Context, run *turnRun, system, user string, maxTokens int, temperature float64) (string, error) {
	if o.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.stepTimeout)
		defer cancel()
	}

	resp, err := o.provider.Chat(ctx, ChatRequest{
		Messages: []ChatMessage{SystemMessage(system), UserMessage(user)},
		Params: &GenerationParams{
			MaxTokens:   IntPtr(maxTokens),
			Temperature: Float64Ptr(temperature),
		},
	})
	if err != nil {
		return "", err
	}
	run.usage.InputTokens += resp.Usage.InputTokens
	run.usage.OutputTokens += resp.Usage.OutputTokens
	return resp.Content, nil
}

// --- Steps ---

// loadMemory queries the recall store with a query synthesized from the user
// prompt and keeps the results that clear the similarity threshold. Lookup
// failures degrade to an empty recall list; the turn never fails here.
func (o *Orchestrator) loadMemory(ctx context.Context, run *turnRun) (turnStep, error) {
	query := "Retrieve past chatbot conversations related to current user prompt: " + run.state.UserPrompt + "."

	embs, err := o.embedding.Embed(ctx, []string{query})
	if err != nil || len(embs) == 0 {
		o.logger.Warn("recall embedding failed, continuing without memory", "error", err)
		return stepDecide, nil
	}

	records, err := o.store.Search(ctx, embs[0], o.recallK)
	if err != nil {
		o.logger.Warn("recall lookup failed, continuing without memory", "error", err)
		return stepDecide, nil
	}

	for _, rec := range records {
		if o.minScore > 0 && rec.Score < o.minScore {
			continue
		}
		run.state.RecallMemories = append(run.state.RecallMemories, rec.Content())
	}

	o.logger.Debug("memory loaded", "candidates", len(records), "kept", len(run.state.RecallMemories))
	return stepDecide, nil
}

// decide asks the model whether the prompt needs a real-time web search.
// The answer is trimmed and lower-cased; only an exact "yes" takes the search
// branch; any other output (including garbage) fails safe to the direct branch.
func (o *Orchestrator) decide(ctx context.Context, run *turnRun) (turnStep, error) {
	answer, err := o.chat(ctx, run, decisionPrompt, run.state.UserPrompt, decisionMaxTokens, 0)
	if err != nil {
		return "", err
	}

	verdict := strings.ToLower(strings.TrimSpace(answer))
	run.state.WebSearchRequired = verdict == "yes"
	if verdict != "yes" && verdict != "no" {
		o.logger.Warn("unparseable decision, defaulting to no search", "answer", answer)
	}

	return decideRoute(&run.state), nil
}

// decideRoute is the single conditional edge of the state machine.
func decideRoute(s *TurnState) turnStep {
	if s.WebSearchRequired {
		return stepGenerateQuery
	}
	return stepGenerateResponse
}

// generateQuery rewrites the user prompt into one short keyword query.
func (o *Orchestrator) generateQuery(ctx context.Context, run *turnRun) (turnStep, error) {
	out, err := o.chat(ctx, run, queryRewritePrompt, run.state.UserPrompt, queryMaxTokens, 0)
	if err != nil {
		return "", err
	}

	query := strings.TrimSpace(out)
	query = strings.Trim(query, `"`)
	if query == "" {
		// A blank rewrite would search for nothing; fall back to the prompt.
		query = run.state.UserPrompt
	}
	run.state.WebSearchQuery = query

	return stepWebSearch, nil
}

// webSearch runs the rewritten query through the search tool. Empty results
// and tool errors both degrade to the sentinel; the turn keeps going.
func (o *Orchestrator) webSearch(ctx context.Context, run *turnRun) (turnStep, error) {
	results, err := o.searcher.Search(ctx, run.state.WebSearchQuery, o.searchMaxResults, true)
	switch {
	case err != nil:
		o.logger.Warn("web search failed, continuing with sentinel", "query", run.state.WebSearchQuery, "error", err)
		run.state.WebSearchResult = NoResultsSentinel
	case len(results) == 0:
		run.state.WebSearchResult = NoResultsSentinel
	default:
		run.state.WebSearchResult = results[0].Content
	}

	return stepGenerateResponse, nil
}

// generateResponse builds the composite prompt and generates the reply.
// This is the only step whose failure is terminal for the turn.
func (o *Orchestrator) generateResponse(ctx context.Context, run *turnRun) (turnStep, error) {
	out, err := o.chat(ctx, run, responsePrompt, compositePrompt(&run.state), o.maxResponseTokens, o.temperature)
	if err != nil {
		return "", err
	}

	reply := strings.TrimSpace(out)
	if reply == "" {
		return "", &ErrLLM{Provider: o.provider.Name(), Message: "empty completion"}
	}
	run.state.FinalResult = reply

	return stepSaveMemory, nil
}

// compositePrompt assembles the final generation input: always the user
// prompt, the recall hint only when memories were kept, and the web search
// result only on the search branch.
func compositePrompt(s *TurnState) string {
	var b strings.Builder
	b.WriteString("user prompt : ")
	b.WriteString(s.UserPrompt)
	if len(s.RecallMemories) > 0 {
		b.WriteString(" {user prompt : past chatbot response} : [")
		b.WriteString(strings.Join(s.RecallMemories, "; "))
		b.WriteString("]")
	}
	if s.WebSearchRequired {
		b.WriteString(" and web search results : ")
		b.WriteString(s.WebSearchResult)
	}
	return b.String()
}

// saveMemory persists the finished exchange in the background. The reply is
// already final; a write failure is logged and never invalidates it.
func (o *Orchestrator) saveMemory(ctx context.Context, run *turnRun) (turnStep, error) {
	rec := RecallRecord{
		ID:          NewID(),
		UserPrompt:  run.state.UserPrompt,
		Response:    run.state.FinalResult,
		Description: RecallDescription,
		CreatedAt:   NowUnix(),
	}

	o.persists.Add(1)
	go func() {
		defer o.persists.Done()
		// Detach from turn cancellation so the write can finish after the
		// reply is returned. Inherits context values (trace IDs).
		bgCtx := context.WithoutCancel(ctx)

		embs, err := o.embedding.Embed(bgCtx, []string{rec.Content()})
		if err == nil && len(embs) > 0 {
			rec.Embedding = embs[0]
		} else {
			o.logger.Warn("embed turn record", "id", rec.ID, "error", err)
		}

		if err := o.store.Insert(bgCtx, rec); err != nil {
			o.logger.Error("persist turn record", "id", rec.ID, "error", err)
		}
	}()

	return stepDone, nil
}
