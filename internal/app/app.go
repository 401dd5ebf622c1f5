// Package app assembles the sync engine from a loaded configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sho7650/social-bridge/internal/api"
	"github.com/sho7650/social-bridge/internal/config"
	"github.com/sho7650/social-bridge/internal/content"
	"github.com/sho7650/social-bridge/internal/core"
	"github.com/sho7650/social-bridge/internal/lock"
	"github.com/sho7650/social-bridge/internal/logger"
	"github.com/sho7650/social-bridge/internal/merger"
	"github.com/sho7650/social-bridge/internal/metrics"
	"github.com/sho7650/social-bridge/internal/orchestrator"
	"github.com/sho7650/social-bridge/internal/platforms/bluesky"
	"github.com/sho7650/social-bridge/internal/platforms/mastodon"
	"github.com/sho7650/social-bridge/internal/platforms/transport"
	"github.com/sho7650/social-bridge/internal/plugins"
	"github.com/sho7650/social-bridge/internal/scheduler"
	"github.com/sho7650/social-bridge/internal/storage"
)

// App holds every long-lived component of one process
type App struct {
	Store        storage.InteractionStore
	Lock         lock.Service
	Registry     *plugins.Registry
	Reloader     *plugins.Reloader
	Content      *content.StaticSource
	Metrics      *metrics.Metrics
	Orchestrator *orchestrator.Orchestrator
	Merger       *merger.Service
	Scheduler    *scheduler.Scheduler

	log         *slog.Logger
	passTimeout time.Duration
	visibility  atomic.Pointer[core.Visibility]
	redisClient *redis.Client
}

// Build opens the store and the lock and wires the remaining components.
// The caller owns the returned App and must Close it.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	log = logger.Or(log)
	a := &App{log: log, passTimeout: cfg.Global.PassTimeout()}
	vis := cfg.Display.CommentTypes
	a.visibility.Store(&vis)

	store, err := storage.Open(cfg.Global.Database.Driver, cfg.Global.Database.Path, cfg.Global.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := store.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.Store = store

	if err := a.openLock(ctx, cfg); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Registry = plugins.NewRegistry(log)
	for _, p := range newPlatforms(cfg) {
		if err := a.Registry.Register(p); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	a.Reloader = plugins.NewReloader(a.Registry, log)
	if err := a.Reloader.Apply(cfg.PlatformSettings()); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to apply platform settings: %w", err)
	}

	a.Content, err = content.NewStaticSource(cfg.ContentItems)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Metrics = metrics.New(nil)
	a.Orchestrator = orchestrator.New(a.Registry, a.Content, a.Store, a.Lock,
		orchestrator.WithMetrics(a.Metrics),
		orchestrator.WithLogger(log),
		orchestrator.WithPassTimeout(cfg.Global.PassTimeout()),
	)
	a.Merger = merger.NewService(a.Store, a.Content, a.Registry, a.Visibility, log)

	a.Scheduler, err = scheduler.New(a.Orchestrator, cfg.Global.Sync.Frequency, scheduler.WithLogger(log))
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	return a, nil
}

func (a *App) openLock(ctx context.Context, cfg *config.Config) error {
	opts := []lock.Option{lock.WithStaleAfter(cfg.Global.StaleAfter()), lock.WithLogger(a.log)}

	switch cfg.Global.Lock.Backend {
	case "redis":
		client, err := lock.NewRedisClient(ctx, cfg.Global.Lock.RedisURL)
		if err != nil {
			return err
		}
		a.redisClient = client
		a.Lock = lock.NewRedisLock(client, cfg.Global.Lock.Key, opts...)
	case "memory":
		// only excludes passes within this process
		a.Lock = lock.NewMemoryLock(opts...)
	default:
		a.Lock = lock.NewDatabaseLock(a.Store, cfg.Global.Lock.Key, opts...)
	}
	return nil
}

// newPlatforms builds one client per supported platform, each with its own
// rate-limited transport.
func newPlatforms(cfg *config.Config) []core.Platform {
	transportFor := func(id string) *transport.Client {
		rl := cfg.Platforms[id].RateLimit
		return transport.New(id, transport.Options{
			Timeout: cfg.Global.RequestTimeout(),
			RPS:     rl.RPS,
			Burst:   rl.Burst,
		})
	}
	return []core.Platform{
		bluesky.New(bluesky.WithTransport(transportFor(bluesky.PlatformID))),
		mastodon.New(mastodon.WithTransport(transportFor(mastodon.PlatformID))),
	}
}

// Visibility returns the display settings currently in effect
func (a *App) Visibility() core.Visibility {
	return *a.visibility.Load()
}

// ApplyConfig pushes a reloaded configuration into the running components.
// Settings that need a restart (storage, lock, listen address) are ignored.
func (a *App) ApplyConfig(cfg *config.Config) error {
	var errs []error
	if err := a.Reloader.Apply(cfg.PlatformSettings()); err != nil {
		errs = append(errs, fmt.Errorf("platforms: %w", err))
	}
	if err := a.Content.Replace(cfg.ContentItems); err != nil {
		errs = append(errs, fmt.Errorf("content items: %w", err))
	}
	if err := a.Scheduler.SetFrequency(cfg.Global.Sync.Frequency); err != nil {
		errs = append(errs, fmt.Errorf("frequency: %w", err))
	}
	vis := cfg.Display.CommentTypes
	a.visibility.Store(&vis)

	if err := errors.Join(errs...); err != nil {
		return err
	}
	a.log.Info("config_applied", "platforms", len(cfg.Platforms), "content_items", len(cfg.ContentItems))
	return nil
}

// HTTPServer builds the HTTP adapter over this App
func (a *App) HTTPServer() *api.Server {
	return api.NewServer(a.Orchestrator, a.Merger,
		api.WithMetricsHandler(a.Metrics.Handler()),
		api.WithReadiness(a.Store.IsReady),
		api.WithLogger(a.log),
		api.WithPassTimeout(a.passTimeout),
	)
}

// Close releases the store and the redis connection
func (a *App) Close() error {
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.redisClient != nil {
		errs = append(errs, a.redisClient.Close())
	}
	return errors.Join(errs...)
}
