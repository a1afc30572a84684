// Command converse runs an interactive terminal chat over a local llama.cpp
// server, with semantic recall of past turns and optional web search.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avendel/converse"
	"github.com/avendel/converse/internal/config"
	"github.com/avendel/converse/observer"
	"github.com/avendel/converse/provider/llamacpp"
	memstore "github.com/avendel/converse/store/memory"
	"github.com/avendel/converse/store/postgres"
	"github.com/avendel/converse/store/sqlite"
	"github.com/avendel/converse/tools/tavily"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load(os.Getenv("CONVERSE_CONFIG"))

	logLevel := slog.LevelInfo
	if os.Getenv("CONVERSE_DEBUG") != "" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	// Providers
	var provider converse.Provider = llamacpp.New(cfg.LLM.BaseURL, cfg.LLM.Model,
		llamacpp.WithAPIKey(cfg.LLM.APIKey))
	var embedding converse.EmbeddingProvider = llamacpp.NewEmbedding(
		cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Embedding.Dimensions,
		llamacpp.WithAPIKey(cfg.Embedding.APIKey))

	// Searcher
	var searcher converse.Searcher
	if cfg.Search.TavilyAPIKey != "" {
		var tavilyOpts []tavily.Option
		if cfg.Search.FetchContent {
			tavilyOpts = append(tavilyOpts, tavily.WithContentFetch(8000))
		}
		searcher = tavily.New(cfg.Search.TavilyAPIKey, tavilyOpts...)
	} else {
		logger.Warn("no Tavily API key configured, web search disabled")
		searcher = unavailableSearcher{}
	}

	// Observability
	var tracer converse.Tracer
	if cfg.Observer.Enabled {
		inst, shutdown, err := observer.Init(ctx)
		if err != nil {
			return fmt.Errorf("init observability: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("observability shutdown", "error", err)
			}
		}()
		provider = observer.WrapProvider(provider, cfg.LLM.Model, inst)
		embedding = observer.WrapEmbedding(embedding, cfg.Embedding.Model, inst)
		searcher = observer.WrapSearcher(searcher, inst)
		tracer = observer.NewTracer()
	}

	// Retry middleware around the local backends.
	provider = converse.WithRetry(provider, converse.RetryLogger(logger))
	embedding = converse.WithEmbeddingRetry(embedding, converse.RetryLogger(logger))
	if cfg.LLM.RPM > 0 || cfg.LLM.TPM > 0 {
		provider = converse.WithRateLimit(provider,
			converse.RPM(cfg.LLM.RPM), converse.TPM(cfg.LLM.TPM))
	}

	// Store and checkpointer
	store, checkpointer, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	orchestrator := converse.NewOrchestrator(provider, embedding, store, searcher,
		converse.WithRecallK(cfg.Turn.RecallTopK),
		converse.WithMinScore(float32(cfg.Turn.RecallMinScore)),
		converse.WithMaxResponseTokens(cfg.Turn.MaxResponseTokens),
		converse.WithTemperature(cfg.Turn.Temperature),
		converse.WithStepTimeout(time.Duration(cfg.Turn.StepTimeoutSeconds)*time.Second),
		converse.WithSearchMaxResults(cfg.Search.MaxResults),
		converse.WithCheckpointer(checkpointer),
		converse.WithLogger(logger),
		converse.WithTracer(tracer),
	)
	defer orchestrator.Drain()

	threadID := os.Getenv("CONVERSE_THREAD_ID")
	session := converse.NewSession(orchestrator, threadID)

	fmt.Printf("converse (thread %s) - type a message, ctrl-d to exit\n", session.ThreadID())
	return repl(ctx, session)
}

// repl reads lines from stdin and prints replies until EOF or cancellation.
func repl(ctx context.Context, session *converse.Session) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		reply, err := session.Send(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println(reply)
	}
}

// openStore builds the recall store and checkpointer for the configured driver.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (converse.RecallStore, converse.Checkpointer, func(), error) {
	switch cfg.Database.Driver {
	case "memory":
		return memstore.New(), converse.NewMemoryCheckpointer(), func() {}, nil

	case "sqlite":
		s := sqlite.New(cfg.Database.Path, sqlite.WithLogger(logger))
		if err := s.Init(ctx); err != nil {
			_ = s.Close()
			return nil, nil, nil, fmt.Errorf("init sqlite store: %w", err)
		}
		return s, s, func() { _ = s.Close() }, nil

	case "postgres":
		if cfg.Database.URL == "" {
			return nil, nil, nil, errors.New("postgres driver requires database.url")
		}
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		s := postgres.New(pool, postgres.WithEmbeddingDimension(cfg.Embedding.Dimensions))
		if err := s.Init(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("init postgres store: %w", err)
		}
		return s, s, func() { pool.Close() }, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// unavailableSearcher stands in when no search backend is configured.
// Every query fails, which the orchestrator degrades to its sentinel result.
type unavailableSearcher struct{}

func (unavailableSearcher) Search(context.Context, string, int, bool) ([]converse.WebResult, error) {
	return nil, errors.New("web search not configured")
}
