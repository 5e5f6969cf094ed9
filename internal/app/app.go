// Package app assembles the store, transport and agents described by a
// config.Config into a ready-to-run orchestrator. Both the server and the
// ledgerctl CLI start from here.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/lifeledger/internal/agent/classifier"
	"github.com/kiranshivaraju/lifeledger/internal/agent/commitment"
	"github.com/kiranshivaraju/lifeledger/internal/cache"
	"github.com/kiranshivaraju/lifeledger/internal/config"
	"github.com/kiranshivaraju/lifeledger/internal/events"
	"github.com/kiranshivaraju/lifeledger/internal/orchestrator"
	"github.com/kiranshivaraju/lifeledger/internal/store"
	"github.com/kiranshivaraju/lifeledger/pkg/models"
)

// App owns every long-lived dependency. Close releases them in reverse
// order of acquisition.
type App struct {
	Config       *config.Config
	Store        store.Store
	Cache        *cache.RedisCache // nil without REDIS_URL
	Bus          events.Bus
	Orchestrator *orchestrator.Orchestrator

	closers []func()
}

// New connects to the configured backends, applies migrations and
// registers both specialist agents.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config
	storeOpts := []store.Option{
		store.WithBackoff(store.Backoff{Base: cfg.Jobs.BackoffBase, Max: cfg.Jobs.BackoffMax}),
		store.WithMaxAttempts(cfg.Jobs.MaxAttempts),
	}

	switch cfg.Store.Driver {
	case config.DriverMemory:
		a.Store = store.NewMemoryStore(storeOpts...)
		slog.Warn("using in-memory store, jobs will not survive a restart")
	default:
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		slog.Info("database connected")

		if err := store.RunMigrations(cfg.Database.URL); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database migrations applied")

		a.Store = store.NewPostgresStore(pool, storeOpts...)
	}

	orchOpts := []orchestrator.Option{
		orchestrator.WithPollInterval(cfg.Orchestrator.PollInterval),
		orchestrator.WithBatchSize(cfg.Orchestrator.BatchSize),
		orchestrator.WithParallelAgents(cfg.Orchestrator.ParallelAgents),
		orchestrator.WithDispatcherID(cfg.Orchestrator.ID),
	}

	if cfg.Redis.Enabled() {
		rc, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rc.Close() })
		if err := rc.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		slog.Info("redis connected")

		a.Cache = rc
		a.Bus = events.NewRedisBus(rc.Client(), events.WithBlock(cfg.Events.StreamBlock))
		orchOpts = append(orchOpts, orchestrator.WithLimiter(orchestrator.NewCacheLimiter(rc, nil)))
	} else {
		a.Bus = events.NewMemoryBus()
	}
	bus := a.Bus
	a.closers = append(a.closers, func() { _ = bus.Close() })
	orchOpts = append(orchOpts, orchestrator.WithBus(a.Bus))

	sentiment, contentClassifier, err := classifier.NewAnalyzers(cfg.Agents)
	if err != nil {
		return fmt.Errorf("create analyzers: %w", err)
	}

	a.Orchestrator = orchestrator.New(a.Store, orchOpts...)
	a.Orchestrator.Register(models.AgentEntryClassifier, classifier.New(a.Orchestrator, a.Store,
		classifier.WithSentimentAnalyzer(sentiment),
		classifier.WithContentClassifier(contentClassifier),
	))
	a.Orchestrator.Register(models.AgentCommitmentDetector, commitment.New(a.Orchestrator, a.Store))

	return nil
}

// Close releases every acquired resource. It is safe to call more than once.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
