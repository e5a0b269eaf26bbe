// Package app initializes and holds long-lived application services,
// acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/tripstack/contentfetch/internal/api"
	"github.com/tripstack/contentfetch/internal/archive"
	"github.com/tripstack/contentfetch/internal/backend/browser"
	"github.com/tripstack/contentfetch/internal/backend/static"
	"github.com/tripstack/contentfetch/internal/backend/structured"
	"github.com/tripstack/contentfetch/internal/cache"
	"github.com/tripstack/contentfetch/internal/config"
	"github.com/tripstack/contentfetch/internal/fetch"
	"github.com/tripstack/contentfetch/internal/orchestrator"
	"github.com/tripstack/contentfetch/internal/publish"
	"github.com/tripstack/contentfetch/internal/ratelimit"
	"github.com/tripstack/contentfetch/internal/selector"
)

// App holds the shared, long-lived services of the fetch service. It is
// built once at startup and torn down with Close; nothing here is a
// package-level global.
type App struct {
	Logger       *zap.Logger
	Orchestrator *orchestrator.Orchestrator
	Server       *api.Server

	memory    *cache.Memory
	postgres  *cache.Postgres
	browser   *browser.Backend
	publisher *publish.PubSub
	janitor   time.Duration
}

// New wires every service from configuration, failing fast when a critical
// dependency cannot be initialized. Optional tiers (Postgres cache, GCS
// archive, Pub/Sub events, browser backend) are skipped when unconfigured.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		Logger:  logger,
		janitor: time.Duration(cfg.Cache.JanitorSeconds) * time.Second,
	}

	limiter := ratelimit.New(ratelimit.Config{
		Window:      cfg.Window(),
		DefaultRate: cfg.Limiter.DefaultRate,
		MinRate:     cfg.Limiter.MinRate,
		MaxRate:     cfg.Limiter.MaxRate,
	})
	controller := ratelimit.NewController(limiter, ratelimit.AdaptiveConfig{
		SuccessThreshold:     cfg.Limiter.SuccessThreshold,
		SoftFailureThreshold: cfg.Limiter.SoftFailureThreshold,
		BackoffFactor:        cfg.Limiter.BackoffFactor,
		RecoveryFactor:       cfg.Limiter.RecoveryFactor,
		GlobalRate:           cfg.Limiter.GlobalRate,
		GlobalBurst:          cfg.Limiter.GlobalBurst,
	}, logger)

	sel := selector.New(selectorConfig(cfg.Selector), logger)

	a.memory = cache.NewMemory()
	var external cache.External
	if cfg.Cache.PostgresDSN != "" {
		pg, err := cache.NewPostgres(ctx, cfg.Cache.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("initialize postgres cache: %w", err)
		}
		logger.Info("postgres cache tier enabled")
		a.postgres = pg
		external = pg
	}
	store := cache.NewTiered(a.memory, external, logger)

	backends := map[fetch.BackendID]fetch.Backend{
		fetch.BackendStatic: static.New(static.Config{
			UserAgent: cfg.Fetch.UserAgent,
			Timeout:   cfg.AttemptTimeout(),
		}),
		fetch.BackendStructured: structured.New(structured.Config{
			UserAgent:    cfg.Fetch.UserAgent,
			Timeout:      cfg.AttemptTimeout(),
			MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		}),
	}
	if cfg.Headless.Enabled {
		b, err := browser.New(browser.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize browser backend: %w", err)
		}
		a.browser = b
		backends[fetch.BackendBrowser] = b
	}

	var archiver orchestrator.Archiver
	if cfg.Archive.GCSBucket != "" {
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		blobs, err := archive.NewGCS(client, archive.GCSConfig{Bucket: cfg.Archive.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("initialize archive: %w", err)
		}
		logger.Info("gcs archive enabled", zap.String("bucket", cfg.Archive.GCSBucket))
		archiver = blobs
	}

	var publisher orchestrator.Publisher
	if cfg.PubSub.TopicName != "" {
		ps, err := publish.NewPubSub(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			return nil, fmt.Errorf("initialize pubsub publisher: %w", err)
		}
		logger.Info("pubsub events enabled", zap.String("topic", cfg.PubSub.TopicName))
		a.publisher = ps
		publisher = ps
	}

	ttl := cache.DefaultTTLPolicy()
	if cfg.Cache.DefaultTTLMinutes > 0 {
		ttl.Default = time.Duration(cfg.Cache.DefaultTTLMinutes) * time.Minute
	}
	for class, minutes := range cfg.Cache.ClassTTLMinutes {
		ttl.ClassTTLs[class] = time.Duration(minutes) * time.Minute
	}
	for domain, minutes := range cfg.Cache.DomainTTLMinutes {
		ttl.DomainTTLs[domain] = time.Duration(minutes) * time.Minute
	}

	a.Orchestrator = orchestrator.New(
		orchestrator.Config{
			AttemptTimeout: cfg.AttemptTimeout(),
			TimeoutIsHard:  cfg.Fetch.TimeoutIsHard,
			ArchivePrefix:  cfg.Archive.Prefix,
		},
		store, ttl, sel, controller, backends, archiver, publisher,
		fetch.SystemClock{}, logger,
	)

	a.Server = api.NewServer(a.Orchestrator, 2*cfg.AttemptTimeout()*time.Duration(len(backends)), logger)
	return a, nil
}

// Start launches background maintenance; it returns immediately and stops
// when ctx is canceled.
func (a *App) Start(ctx context.Context) {
	if a.janitor > 0 {
		a.memory.StartJanitor(ctx, a.janitor)
	}
}

// Close releases every held resource.
func (a *App) Close() {
	if a.browser != nil {
		a.browser.Close()
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.Logger.Warn("close publisher", zap.Error(err))
		}
	}
}

func selectorConfig(sc config.SelectorConfig) selector.Config {
	out := selector.Config{
		BrowserDomains: sc.BrowserDomains,
		AuthDomains:    sc.AuthDomains,
	}
	if len(sc.ContentTypeRoutes) > 0 {
		out.ContentTypeRoutes = make(map[string]fetch.BackendID, len(sc.ContentTypeRoutes))
		for class, backend := range sc.ContentTypeRoutes {
			out.ContentTypeRoutes[class] = fetch.BackendID(backend)
		}
	}
	return out
}
