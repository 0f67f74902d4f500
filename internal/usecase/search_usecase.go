package usecase

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/brandwatch/internal/entity"
	"github.com/user/brandwatch/internal/fetch"
	"github.com/user/brandwatch/internal/repository"
	"github.com/user/brandwatch/pkg/metrics"
)

// PageSource returns search result markup, falling back to rendering when the
// markup lacks marker.
type PageSource interface {
	Get(ctx context.Context, rawURL, marker string) (string, error)
}

// RunRequest describes one search run.
type RunRequest struct {
	Keywords     []string
	Platforms    []entity.PlatformID
	Concurrency  int // workers; 0 uses the configured default
	MaxWorkItems int // 0 means no cap
	SoldSweep    bool
	DryRun       bool      // extract and classify only; nothing is stored or notified
	StartedAt    time.Time // zero means now
	Trigger      string
}

// RunResult is delivered once a run has finished. Known is only filled by dry
// runs and holds the extracted listings the store already has.
type RunResult struct {
	Summary entity.RunSummary
	New     []entity.Listing
	Known   []entity.Listing
}

// RunHandle identifies a started run. Done receives its result once.
type RunHandle struct {
	ID   string
	Done <-chan RunResult
}

// SearchOptions are the orchestrator defaults.
type SearchOptions struct {
	Workers    int
	Jitter     time.Duration // upper bound of the random pause between work items
	BatchPause time.Duration // pause after each batch of Workers dispatched items
}

// Orchestrator fans keyword x platform work items out over a bounded worker pool.
type Orchestrator interface {
	// Start begins a run in the background. It fails with ErrRunInProgress
	// while another run is active.
	Start(ctx context.Context, req RunRequest) (RunHandle, error)
	// Run starts a run and waits for it.
	Run(ctx context.Context, req RunRequest) (RunResult, error)
}

type searchUseCase struct {
	state    *RunState
	sites    repository.SiteRegistry
	pages    PageSource
	dedup    Deduplicator
	notifier repository.Notifier
	listings repository.ListingRepository
	opts     SearchOptions
	logger   *zap.Logger

	sleep fetch.Sleeper
	now   func() time.Time
}

func NewOrchestrator(
	state *RunState,
	sites repository.SiteRegistry,
	pages PageSource,
	dedup Deduplicator,
	notifier repository.Notifier,
	listings repository.ListingRepository,
	opts SearchOptions,
	logger *zap.Logger,
) Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &searchUseCase{
		state:    state,
		sites:    sites,
		pages:    pages,
		dedup:    dedup,
		notifier: notifier,
		listings: listings,
		opts:     opts,
		logger:   logger,
		sleep:    fetch.SleepContext,
		now:      time.Now,
	}
}

func (uc *searchUseCase) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	h, err := uc.Start(ctx, req)
	if err != nil {
		return RunResult{}, err
	}
	select {
	case res := <-h.Done:
		return res, nil
	case <-ctx.Done():
		return RunResult{}, ctx.Err()
	}
}

func (uc *searchUseCase) Start(ctx context.Context, req RunRequest) (RunHandle, error) {
	if req.StartedAt.IsZero() {
		req.StartedAt = uc.now()
	}
	runID := uuid.NewString()
	token, err := uc.state.TryBegin(runID, req.StartedAt)
	if err != nil {
		return RunHandle{}, err
	}

	done := make(chan RunResult, 1)
	go func() {
		defer close(done)
		res := uc.execute(ctx, req, runID, token)
		uc.state.End(res.Summary)
		done <- res
	}()
	return RunHandle{ID: runID, Done: done}, nil
}

// itemOutcome is what one processed work item contributes to the run.
type itemOutcome struct {
	item    entity.WorkItem
	failed  bool
	total   int
	seenIDs []string
	brands  []string
	fresh   []entity.Listing
	known   []entity.Listing
}

type runAggregate struct {
	mu        sync.Mutex
	processed int
	failed    int
	total     int
	brands    map[string]struct{}
	fresh     []entity.Listing
	known     []entity.Listing
	seen      map[entity.PlatformID][]string
	platFails map[entity.PlatformID]bool
}

func (a *runAggregate) add(o itemOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.processed++
	a.total += o.total
	a.fresh = append(a.fresh, o.fresh...)
	a.known = append(a.known, o.known...)
	a.seen[o.item.Platform] = append(a.seen[o.item.Platform], o.seenIDs...)
	for _, b := range o.brands {
		a.brands[b] = struct{}{}
	}
	if o.failed {
		a.failed++
		a.platFails[o.item.Platform] = true
	}
}

func (uc *searchUseCase) execute(ctx context.Context, req RunRequest, runID string, token StopToken) RunResult {
	metrics.RunsInFlight.Inc()
	defer metrics.RunsInFlight.Dec()

	items, capped := expandWorkItems(req.Keywords, req.Platforms, req.MaxWorkItems)
	workers := req.Concurrency
	if workers < 1 {
		workers = uc.opts.Workers
	}
	log := uc.logger.With(zap.String("run_id", runID))
	log.Info("Search run started",
		zap.String("trigger", req.Trigger),
		zap.Int("keywords", len(req.Keywords)),
		zap.Int("platforms", len(req.Platforms)),
		zap.Int("work_items", len(items)),
		zap.Bool("capped", capped),
		zap.Int("workers", workers),
		zap.Bool("dry_run", req.DryRun),
	)

	agg := &runAggregate{
		brands:    make(map[string]struct{}),
		seen:      make(map[entity.PlatformID][]string),
		platFails: make(map[entity.PlatformID]bool),
	}

	queue := make(chan entity.WorkItem)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(queue)
		for i, item := range items {
			if i > 0 && uc.opts.BatchPause > 0 && i%workers == 0 {
				if err := uc.sleep(gctx, uc.opts.BatchPause); err != nil {
					return nil
				}
			}
			select {
			case <-token.Done():
				return nil
			case <-gctx.Done():
				return nil
			case queue <- item:
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for item := range queue {
				if token.Stopped() || gctx.Err() != nil {
					return nil
				}
				outcome := uc.processItem(gctx, log, item, req.DryRun)
				agg.add(outcome)
				uc.state.RecordCheck(item.Platform, len(outcome.fresh), outcome.failed)

				if uc.opts.Jitter > 0 {
					_ = uc.sleep(gctx, time.Duration(rand.Int63n(int64(uc.opts.Jitter))))
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	stopped := agg.processed < len(items)
	if req.SoldSweep && !req.DryRun && !stopped && !capped && ctx.Err() == nil {
		uc.sweepSold(ctx, log, req.Platforms, agg)
	}

	brands := make([]string, 0, len(agg.brands))
	for b := range agg.brands {
		brands = append(brands, b)
	}
	sort.Strings(brands)

	summary := entity.RunSummary{
		RunID:      runID,
		StartedAt:  req.StartedAt,
		FinishedAt: uc.now(),
		WorkItems:  len(items),
		Failed:     agg.failed,
		Total:      agg.total,
		New:        len(agg.fresh),
		Brands:     brands,
		Stopped:    stopped,
	}
	metrics.RunDuration.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	log.Info("Search run finished",
		zap.Int("processed", agg.processed),
		zap.Int("failed", agg.failed),
		zap.Int("total", summary.Total),
		zap.Int("new", summary.New),
		zap.Bool("stopped", stopped),
		zap.Duration("duration", summary.FinishedAt.Sub(summary.StartedAt)),
	)

	if uc.notifier != nil && !req.DryRun {
		if err := uc.notifier.Summary(ctx, summary); err != nil {
			log.Error("Failed to send run summary", zap.Error(err))
		}
	}
	return RunResult{Summary: summary, New: agg.fresh, Known: agg.known}
}

// processItem handles one work item. Failures, panics included, stay inside
// the item and are reported through the outcome. A dry run previews listings
// instead of storing and notifying them.
func (uc *searchUseCase) processItem(ctx context.Context, log *zap.Logger, item entity.WorkItem, dryRun bool) (out itemOutcome) {
	out.item = item
	log = log.With(zap.String("keyword", item.Keyword), zap.String("platform", string(item.Platform)))

	defer func() {
		if r := recover(); r != nil {
			log.Error("Work item panicked", zap.Any("panic", r))
			out.failed = true
		}
		status := "ok"
		if out.failed {
			status = "failed"
		}
		metrics.WorkItemsTotal.WithLabelValues(string(item.Platform), status).Inc()
	}()

	adapter, ok := uc.sites.Lookup(item.Platform)
	if !ok {
		log.Warn("No adapter for platform")
		out.failed = true
		return out
	}

	markup, err := uc.fetchFirst(ctx, adapter, item.Keyword)
	if err != nil {
		log.Warn("No markup for work item", zap.Error(err))
		out.failed = true
		return out
	}

	raws, err := adapter.Extract(markup)
	if err != nil {
		log.Warn("Extraction failed", zap.Error(err))
		out.failed = true
		return out
	}

	brands := make(map[string]struct{})
	for _, raw := range raws {
		var (
			res ProcessResult
			err error
		)
		if dryRun {
			res, err = uc.dedup.Preview(ctx, raw)
		} else {
			res, err = uc.dedup.Process(ctx, raw)
		}
		if err != nil {
			log.Error("Failed to process listing", zap.String("url", raw.URL), zap.Error(err))
			out.failed = true
			continue
		}
		out.total++
		out.seenIDs = append(out.seenIDs, res.Listing.ID)
		if res.Listing.Brand != "" {
			brands[res.Listing.Brand] = struct{}{}
		}
		if dryRun {
			if res.IsNew {
				out.fresh = append(out.fresh, res.Listing)
			} else {
				out.known = append(out.known, res.Listing)
			}
			continue
		}
		if !res.IsNew {
			metrics.ListingsFoundTotal.WithLabelValues(string(item.Platform), "seen").Inc()
			continue
		}
		metrics.ListingsFoundTotal.WithLabelValues(string(item.Platform), "new").Inc()
		out.fresh = append(out.fresh, res.Listing)
		uc.notify(ctx, log, res.Listing)
	}
	for b := range brands {
		out.brands = append(out.brands, b)
	}

	log.Debug("Work item done", zap.Int("listings", out.total), zap.Int("new", len(out.fresh)))
	return out
}

// fetchFirst tries the adapter's search URLs in order until one yields markup.
func (uc *searchUseCase) fetchFirst(ctx context.Context, adapter repository.SiteAdapter, keyword string) (string, error) {
	urls := adapter.SearchURLs(keyword)
	if len(urls) == 0 {
		return "", fmt.Errorf("no search url for %q", keyword)
	}
	var lastErr error
	for _, u := range urls {
		markup, err := uc.pages.Get(ctx, u, adapter.ExpectedMarker())
		if err == nil {
			return markup, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

func (uc *searchUseCase) notify(ctx context.Context, log *zap.Logger, l entity.Listing) {
	if uc.notifier == nil {
		return
	}
	if err := uc.notifier.Notify(ctx, l); err != nil {
		log.Error("Failed to notify listing", zap.String("id", l.ID), zap.Error(err))
	}
}

// sweepSold marks listings absent from this run's results inactive, only for
// platforms whose every work item succeeded.
func (uc *searchUseCase) sweepSold(ctx context.Context, log *zap.Logger, platforms []entity.PlatformID, agg *runAggregate) {
	if uc.listings == nil {
		return
	}
	for _, p := range platforms {
		if agg.platFails[p] {
			log.Info("Skipping sold sweep for platform with failures", zap.String("platform", string(p)))
			continue
		}
		n, err := uc.listings.MarkAllInactiveExcept(ctx, p, agg.seen[p])
		if err != nil {
			log.Error("Sold sweep failed", zap.String("platform", string(p)), zap.Error(err))
			continue
		}
		if n > 0 {
			log.Info("Marked listings inactive", zap.String("platform", string(p)), zap.Int64("count", n))
		}
	}
}

// expandWorkItems builds the shuffled keyword x platform cross product,
// truncated to limit when limit is positive.
func expandWorkItems(keywords []string, platforms []entity.PlatformID, limit int) ([]entity.WorkItem, bool) {
	items := make([]entity.WorkItem, 0, len(keywords)*len(platforms))
	for _, k := range keywords {
		for _, p := range platforms {
			items = append(items, entity.WorkItem{Keyword: k, Platform: p})
		}
	}
	rand.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })

	if limit > 0 && len(items) > limit {
		return items[:limit], true
	}
	return items, false
}
