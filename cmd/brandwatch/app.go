package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/user/brandwatch/internal/adapter/chromedp_renderer"
	"github.com/user/brandwatch/internal/adapter/memory"
	"github.com/user/brandwatch/internal/adapter/notifier"
	"github.com/user/brandwatch/internal/adapter/postgres"
	redis_adapter "github.com/user/brandwatch/internal/adapter/redis"
	"github.com/user/brandwatch/internal/adapter/sqlite"
	"github.com/user/brandwatch/internal/brand"
	"github.com/user/brandwatch/internal/fetch"
	"github.com/user/brandwatch/internal/proxy"
	"github.com/user/brandwatch/internal/repository"
	"github.com/user/brandwatch/internal/site"
	"github.com/user/brandwatch/internal/usecase"
	"github.com/user/brandwatch/pkg/config"
	"github.com/user/brandwatch/pkg/logger"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	listings   repository.ListingRepository
	proxyStore *proxy.FileStore
	rotator    *proxy.Rotator
	renderer   repository.Renderer
	pages      *fetch.Fallback
	sites      *site.Registry
	brands     *brand.Table
	dedup      usecase.Deduplicator
	notifier   *notifier.AsyncNotifier
	state      *usecase.RunState
	orch       usecase.Orchestrator
	ctrl       usecase.Controller

	closers []func() error
}

// newLogger builds the process logger from the loaded configuration.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	l, err := logger.New(cfg.LogLevel, cfg.AppEnv)
	if err != nil {
		return nil, err
	}
	return l.With(zap.String("service", "brandwatch")), nil
}

// openListings connects the configured listing store, with the seen cache in
// front of it when Redis is configured.
func openListings(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.ListingRepository, []func() error, error) {
	var (
		store   repository.ListingRepository
		closers []func() error
	)
	switch cfg.Store {
	case "memory":
		store = memory.NewListingRepo()
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		repo := postgres.NewListingRepo(db)
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, nil, err
		}
		store = repo
		log.Info("PostgreSQL connection pool established")
	default:
		repo, err := sqlite.NewListingRepo(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		store = repo
		log.Info("SQLite database opened", zap.String("path", cfg.SQLitePath))
	}
	closers = append(closers, store.Close)

	if cfg.RedisAddr != "" {
		rdb, err := redis_adapter.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		closers = append(closers, rdb.Close)
		store = redis_adapter.NewCachedListingRepo(store, redis_adapter.NewSeenRepo(rdb), cfg.SeenTTL(), log)
		log.Info("Redis seen cache enabled", zap.String("addr", cfg.RedisAddr))
	}
	return store, closers, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: log}

	listings, closers, err := openListings(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open listing store: %w", err)
	}
	a.listings = listings
	a.closers = append(a.closers, closers...)

	// --- Identity rotation ---
	a.proxyStore = proxy.NewFileStore(cfg.ProxyFile)
	addrs, err := a.proxyStore.Load()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.rotator = proxy.NewRotator(addrs, cfg.ProxyRotateEvery, log)
	log.Info("Proxies loaded", zap.Int("count", len(addrs)), zap.String("file", cfg.ProxyFile))

	// --- Fetching ---
	fetcher := fetch.NewFetcher(a.rotator, fetch.Options{
		Timeout:     cfg.FetchTimeout(),
		MaxRetries:  cfg.FetchMaxRetries,
		BaseDelay:   cfg.FetchBaseDelay(),
		Concurrency: cfg.HTTPConcurrency,
		HostRate:    cfg.HostRatePerSecond,
	}, log)
	if cfg.RenderEnabled {
		r := chromedp_renderer.NewChromedpRenderer(log)
		a.renderer = r
		a.closers = append(a.closers, r.Close)
	}
	a.pages = fetch.NewFallback(fetcher, a.renderer, a.rotator, fetch.FallbackOptions{
		Concurrency: cfg.RenderConcurrency,
		NavTimeout:  cfg.RenderNavTimeout(),
		WaitTimeout: cfg.RenderWaitTimeout(),
	}, log)

	// --- Sites and brands ---
	siteCfgs, err := site.LoadConfigs(cfg.SitesFile)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.sites, err = site.NewRegistry(siteCfgs, cfg.ItemsPerPage, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.brands, err = brand.Load(cfg.BrandsFile)
	if err != nil {
		a.Close()
		return nil, err
	}
	platforms, err := a.sites.Resolve(cfg.PlatformList())
	if err != nil {
		a.Close()
		return nil, err
	}

	// --- Notifications ---
	var sink repository.Notifier = notifier.NewLogNotifier(log)
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		sink = notifier.NewTelegramNotifier("", cfg.TelegramBotToken, cfg.TelegramChatID, log)
		log.Info("Telegram notifications enabled")
	}
	a.notifier = notifier.NewAsyncNotifier(sink, notifier.DefaultQueueSize, notifier.DefaultSenders, log)
	a.closers = append(a.closers, a.notifier.Close)

	// --- Use Cases ---
	a.dedup = usecase.NewDeduplicator(a.listings, a.brands)
	a.state = usecase.NewRunState(cfg.SearchMode, cfg.SchedInterval(), cfg.SchedTurboInterval())
	a.orch = usecase.NewOrchestrator(a.state, a.sites, a.pages, a.dedup, a.notifier, a.listings, usecase.SearchOptions{
		Workers:    cfg.Workers,
		Jitter:     cfg.RequestJitter(),
		BatchPause: cfg.BatchPause(),
	}, log)
	a.ctrl = usecase.NewController(a.state, a.orch, a.sites, a.brands, a.listings, a.rotator, a.proxyStore, usecase.ControlOptions{
		SelectedBrands:   cfg.KeywordList(),
		Platforms:        platforms,
		Workers:          cfg.Workers,
		TurboWorkers:     cfg.TurboWorkers,
		MaxWorkItems:     cfg.MaxWorkItems,
		AutoMaxWorkItems: cfg.AutoMaxWorkItems,
		SoldSweep:        cfg.SoldSweep,
		Retention:        cfg.Retention(),
	}, log)

	return a, nil
}

// Close releases resources in reverse order of acquisition. Queued
// notifications are flushed before the store closes.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Failed to close resource", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}
