package cmd

import (
	"context"
	"fmt"

	"github.com/samsaffron/term-agent/internal/agent"
	"github.com/samsaffron/term-agent/internal/config"
	"github.com/samsaffron/term-agent/internal/embedding"
	"github.com/samsaffron/term-agent/internal/llm"
	"github.com/samsaffron/term-agent/internal/mcp"
	"github.com/samsaffron/term-agent/internal/memory"
	"github.com/samsaffron/term-agent/internal/metrics"
	"github.com/samsaffron/term-agent/internal/tools"
	"github.com/samsaffron/term-agent/internal/trace"
	"go.uber.org/zap"
)

// app holds everything a chat needs for the life of the process.
type app struct {
	store  *memory.Store
	mcp    *mcp.Manager
	engine *agent.Engine
	tracer *trace.Tracer
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	provider, err := llm.NewProvider(cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Memory.Seed {
		n, err := memory.SeedIfEmpty(ctx, store, cfg.Memory.UserID)
		if err != nil {
			logger.Warn("seeding memory failed", zap.Error(err))
		} else if n > 0 {
			logger.Info("seeded memory", zap.Int("items", n))
		}
	}

	registry := tools.Build(cfg, store, logger)

	manager := mcp.NewManager(cfg.MCP, logger)
	manager.StartAll(ctx)
	if n := manager.Register(registry); n > 0 {
		logger.Info("registered MCP tools", zap.Int("count", n))
	}

	prompt, err := agent.BuildSystemPrompt(registry.AllSpecs(), cfg.Memory.UserID, cfg.Agent.Instructions)
	if err != nil {
		manager.StopAll()
		_ = store.Close()
		return nil, err
	}

	engine := agent.New(provider, registry, agent.Options{
		Model:        cfg.ActiveModel(),
		Temperature:  cfg.Agent.Temperature,
		MaxTurns:     cfg.Agent.MaxTurns,
		SystemPrompt: prompt,
		Logger:       logger,
		Observer:     metrics.Recorder{},
	})
	threadID := agent.NewThreadID()
	logger.Info("agent ready",
		zap.String("provider", provider.Name()),
		zap.String("model", cfg.ActiveModel()),
		zap.String("thread", threadID),
		zap.Int("tools", registry.Len()))

	return &app{
		store:  store,
		mcp:    manager,
		engine: engine,
		tracer: trace.NewTracer(engine, threadID, logger),
	}, nil
}

func (a *app) Close() {
	a.mcp.StopAll()
	_ = a.store.Close()
}

// openStore opens the memory store with the configured embedder. Without a
// usable embedder, search falls back to keywords.
func openStore(cfg *config.Config, logger *zap.Logger) (*memory.Store, error) {
	embedder, err := embedding.NewProvider(cfg)
	if err != nil {
		logger.Warn("embeddings disabled", zap.Error(err))
		embedder = nil
	}
	store, err := memory.NewStore(memory.Config{
		Path:     cfg.Memory.Path,
		Embedder: embedder,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}
	return store, nil
}
