// Package app wires configuration, the LLM stack, tools, the report store
// and the HTTP server into a runnable gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"worldeconomics/internal/agent"
	"worldeconomics/internal/crew"
	"worldeconomics/internal/gateway/config"
	"worldeconomics/internal/gateway/handler"
	"worldeconomics/internal/gateway/runtime"
	"worldeconomics/internal/gateway/server"
	"worldeconomics/internal/gateway/service/analysis"
	"worldeconomics/internal/llm"
	"worldeconomics/internal/report"
	"worldeconomics/internal/tools"
	"worldeconomics/internal/tools/search"
	"worldeconomics/internal/tools/webpage"
	"worldeconomics/internal/trace"
)

type App struct {
	server   *server.Server
	analysis *analysis.Service
	llm      llm.LLMClient
	store    *reportStore
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

func NewWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	// Dependencies
	client, err := NewLLM(ctx, cfg)
	if err != nil {
		return nil, err
	}
	registry := NewTools(cfg)
	c, err := LoadCrew(cfg, registry)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	stores, err := initReportStore(cfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	index := report.NewIndex(stores.store)
	if n, err := index.Restore(ctx); err != nil {
		log.Printf("report index: restore failed: %v", err)
	} else if n > 0 {
		log.Printf("report index: restored %d runs", n)
	}

	exec := NewExecutor(cfg, client, registry)
	svc, err := analysis.New(analysis.Options{
		Crew:        c,
		Executor:    exec,
		TaskTimeout: cfg.TaskTimeout,
		Index:       index,
		Trace:       trace.NewLogger(cfg.TraceDir),
		Hub:         runtime.NewHub(),
	})
	if err != nil {
		_ = client.Close()
		_ = stores.close()
		return nil, err
	}

	// Routing & Server
	mux := server.NewMux(handler.New(svc))
	srv := server.New(cfg.Port, mux)

	return &App{server: srv, analysis: svc, llm: client, store: stores}, nil
}

// NewLLM builds the configured provider client with its middleware chain.
func NewLLM(ctx context.Context, cfg *config.Config) (llm.LLMClient, error) {
	return llm.New(ctx, llm.Options{
		Model:           cfg.LLM.Model,
		Provider:        cfg.LLM.Provider,
		GeminiAPIKey:    cfg.LLM.GeminiAPIKey,
		OpenAIAPIKey:    cfg.LLM.OpenAIAPIKey,
		OpenAIBaseURL:   cfg.LLM.OpenAIBaseURL,
		AnthropicAPIKey: cfg.LLM.AnthropicAPIKey,
		RPS:             cfg.LLM.RPS,
		Burst:           cfg.LLM.Burst,
		RetryAttempts:   cfg.LLM.RetryAttempts,
		RetryDelay:      2 * time.Second,
		CallTimeout:     cfg.LLM.CallTimeout,
	})
}

// NewTools registers the web search and page reader tools.
func NewTools(cfg *config.Config) *tools.Registry {
	var searcher search.Searcher
	switch cfg.Search.Provider {
	case "searxng":
		searcher = search.NewSearxng(cfg.Search.SearxngURL)
	default:
		searcher = search.NewSerper(cfg.Search.SerperAPIKey)
		if cfg.Search.SerperAPIKey == "" {
			log.Printf("search: SERPER_API_KEY is not set; web_search calls will fail")
		}
	}
	return tools.NewRegistry(
		search.NewTool(searcher, cfg.Search.Limit),
		webpage.NewTool(nil),
	)
}

// LoadCrew returns the embedded crew or the one at cfg.CrewFile.
func LoadCrew(cfg *config.Config, registry *tools.Registry) (*crew.Crew, error) {
	if cfg.CrewFile == "" {
		return crew.Default(), nil
	}
	c, err := crew.Load(cfg.CrewFile, registry.Names()...)
	if err != nil {
		return nil, fmt.Errorf("failed to load crew %s: %w", cfg.CrewFile, err)
	}
	return c, nil
}

func NewExecutor(cfg *config.Config, client llm.LLMClient, registry *tools.Registry) *agent.Executor {
	exec := agent.New(client, registry)
	if cfg.LLM.MaxIters > 0 {
		exec.MaxIters = cfg.LLM.MaxIters
	}
	return exec
}

func (a *App) Start() error {
	return a.server.Start()
}

// Shutdown stops accepting requests, cancels background runs and releases
// the LLM client and report store.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	if serr := a.analysis.Shutdown(ctx); serr != nil {
		err = errors.Join(err, serr)
	}
	if lerr := a.llm.Close(); lerr != nil {
		err = errors.Join(err, lerr)
	}
	if cerr := a.store.close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}
