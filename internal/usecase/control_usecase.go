package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/user/brandwatch/internal/entity"
	"github.com/user/brandwatch/internal/repository"
)

// ErrInvalidRun rejects a manual run that names nothing searchable.
var ErrInvalidRun = errors.New("invalid run request")

// KeywordSource expands brand names into search keywords.
type KeywordSource interface {
	Names() []string
	Keywords(names []string) []string
	AllKeywords() []string
}

// ProxyPool is the live view of the identity rotator's proxies.
type ProxyPool interface {
	Entries() []entity.ProxyEntry
	Add(addrs ...string)
}

// ManualRun is an on-demand run request from the control surface. Keywords
// win over Brands; with neither, the current mode decides.
type ManualRun struct {
	Brands    []string
	Keywords  []string
	Platforms []entity.PlatformID
	DryRun    bool
}

// ControlOptions hold the configured run defaults.
type ControlOptions struct {
	SelectedBrands   []string
	Platforms        []entity.PlatformID
	Workers          int
	TurboWorkers     int
	MaxWorkItems     int
	AutoMaxWorkItems int
	SoldSweep        bool
	Retention        time.Duration
}

// Controller is the run-trigger surface used by the HTTP API, the CLI and the scheduler.
type Controller interface {
	Launcher
	Sweeper
	StartRun(ctx context.Context, run ManualRun) (RunHandle, error)
	Stop() bool
	Pause()
	Resume()
	SetTurbo(on bool)
	SetMode(mode string) error
	SetIntervals(interval, turboInterval time.Duration) error
	Status() StatusSnapshot
	Stats(ctx context.Context) ([]entity.BrandStat, error)
	Proxies() []entity.ProxyEntry
	AddProxies(addrs ...string) ([]entity.ProxyEntry, error)
}

type controlUseCase struct {
	state      *RunState
	orch       Orchestrator
	sites      repository.SiteRegistry
	keywords   KeywordSource
	listings   repository.ListingRepository
	proxies    ProxyPool
	proxyStore repository.ProxyStore
	opts       ControlOptions
	logger     *zap.Logger
	now        func() time.Time
}

func NewController(
	state *RunState,
	orch Orchestrator,
	sites repository.SiteRegistry,
	keywords KeywordSource,
	listings repository.ListingRepository,
	proxies ProxyPool,
	proxyStore repository.ProxyStore,
	opts ControlOptions,
	logger *zap.Logger,
) Controller {
	if opts.TurboWorkers < opts.Workers {
		opts.TurboWorkers = opts.Workers
	}
	return &controlUseCase{
		state:      state,
		orch:       orch,
		sites:      sites,
		keywords:   keywords,
		listings:   listings,
		proxies:    proxies,
		proxyStore: proxyStore,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// Launch starts a scheduled run in the current mode.
func (uc *controlUseCase) Launch(ctx context.Context, at time.Time, trigger string) error {
	req := uc.Plan(ManualRun{}, trigger)
	req.StartedAt = at
	h, err := uc.orch.Start(ctx, req)
	if err != nil {
		return err
	}
	go func() { <-h.Done }()
	return nil
}

// StartRun begins an on-demand run that outlives ctx's cancellation.
// Platform names are matched case-insensitively against the site table.
func (uc *controlUseCase) StartRun(ctx context.Context, run ManualRun) (RunHandle, error) {
	platforms := make([]entity.PlatformID, 0, len(run.Platforms))
	for _, p := range run.Platforms {
		adapter, ok := uc.sites.Lookup(p)
		if !ok {
			return RunHandle{}, fmt.Errorf("%w: unknown platform %q", ErrInvalidRun, p)
		}
		platforms = append(platforms, adapter.Platform())
	}
	run.Platforms = platforms

	req := uc.Plan(run, "manual")
	if len(req.Keywords) == 0 {
		return RunHandle{}, fmt.Errorf("%w: no keywords to search", ErrInvalidRun)
	}
	if len(req.Platforms) == 0 {
		return RunHandle{}, fmt.Errorf("%w: no platforms to search", ErrInvalidRun)
	}
	return uc.orch.Start(context.WithoutCancel(ctx), req)
}

// Plan turns a manual run and the current mode into a run request.
func (uc *controlUseCase) Plan(run ManualRun, trigger string) RunRequest {
	req := RunRequest{
		Platforms:    run.Platforms,
		Concurrency:  uc.opts.Workers,
		MaxWorkItems: uc.opts.MaxWorkItems,
		SoldSweep:    uc.opts.SoldSweep,
		DryRun:       run.DryRun,
		Trigger:      trigger,
	}
	if uc.state.Turbo() {
		req.Concurrency = uc.opts.TurboWorkers
	}
	if len(req.Platforms) == 0 {
		req.Platforms = uc.opts.Platforms
	}
	if len(req.Platforms) == 0 {
		req.Platforms = uc.sites.Platforms()
	}

	switch {
	case len(run.Keywords) > 0:
		req.Keywords = run.Keywords
	case len(run.Brands) > 0:
		req.Keywords = uc.keywords.Keywords(run.Brands)
	case uc.state.Mode() == ModeAuto:
		req.Keywords = uc.keywords.AllKeywords()
		req.MaxWorkItems = uc.opts.AutoMaxWorkItems
	default:
		names := uc.opts.SelectedBrands
		if len(names) == 0 {
			names = uc.keywords.Names()
		}
		req.Keywords = uc.keywords.Keywords(names)
	}
	return req
}

func (uc *controlUseCase) Stop() bool {
	ok := uc.state.RequestStop()
	if ok {
		uc.logger.Info("Stop requested for the current run")
	}
	return ok
}

func (uc *controlUseCase) Pause() {
	uc.state.SetPaused(true)
	uc.logger.Info("Scheduler paused")
}

func (uc *controlUseCase) Resume() {
	uc.state.SetPaused(false)
	uc.logger.Info("Scheduler resumed")
}

func (uc *controlUseCase) SetTurbo(on bool) {
	uc.state.SetTurbo(on)
	uc.logger.Info("Turbo mode changed", zap.Bool("turbo", on), zap.Duration("interval", uc.state.Interval()))
}

func (uc *controlUseCase) SetMode(mode string) error {
	if err := uc.state.SetMode(mode); err != nil {
		return err
	}
	uc.logger.Info("Search mode changed", zap.String("mode", mode))
	return nil
}

func (uc *controlUseCase) SetIntervals(interval, turboInterval time.Duration) error {
	if interval < 0 || turboInterval < 0 {
		return errors.New("intervals must not be negative")
	}
	if interval > 0 && interval < time.Minute || turboInterval > 0 && turboInterval < time.Minute {
		return errors.New("intervals must be at least one minute")
	}
	uc.state.SetIntervals(interval, turboInterval)
	return nil
}

func (uc *controlUseCase) Status() StatusSnapshot {
	return uc.state.Snapshot()
}

func (uc *controlUseCase) Stats(ctx context.Context) ([]entity.BrandStat, error) {
	return uc.listings.StatsByBrand(ctx)
}

func (uc *controlUseCase) Proxies() []entity.ProxyEntry {
	if uc.proxies == nil {
		return nil
	}
	return uc.proxies.Entries()
}

// AddProxies persists new addresses and puts them into rotation.
func (uc *controlUseCase) AddProxies(addrs ...string) ([]entity.ProxyEntry, error) {
	if uc.proxyStore == nil || uc.proxies == nil {
		return nil, errors.New("proxy management is not configured")
	}
	saved, err := uc.proxyStore.Append(addrs...)
	if err != nil {
		return nil, fmt.Errorf("failed to save proxies: %w", err)
	}
	uc.proxies.Add(saved...)
	return uc.proxies.Entries(), nil
}

// Sweep deletes listings not seen within the retention window.
func (uc *controlUseCase) Sweep(ctx context.Context) (int64, error) {
	if uc.opts.Retention <= 0 {
		return 0, nil
	}
	return uc.listings.DeleteOlderThan(ctx, uc.now().Add(-uc.opts.Retention))
}
