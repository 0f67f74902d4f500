package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/user/brandwatch/internal/repository"
	"github.com/user/brandwatch/pkg/metrics"
)

// PageFetcher is the fast path used before falling back to rendering.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// FallbackOptions configures the render path.
type FallbackOptions struct {
	Concurrency int // must stay below the HTTP ceiling
	NavTimeout  time.Duration
	WaitTimeout time.Duration
}

// Fallback fetches a page over plain HTTP and re-fetches it through a browser
// engine when the fetch fails or the markup lacks the expected marker.
// A nil renderer disables the render path.
type Fallback struct {
	fetcher    PageFetcher
	renderer   repository.Renderer
	identities IdentitySource
	sem        *semaphore.Weighted
	opts       FallbackOptions
	logger     *zap.Logger
}

func NewFallback(fetcher PageFetcher, renderer repository.Renderer, identities IdentitySource, opts FallbackOptions, logger *zap.Logger) *Fallback {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 30 * time.Second
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 10 * time.Second
	}
	return &Fallback{
		fetcher:    fetcher,
		renderer:   renderer,
		identities: identities,
		sem:        semaphore.NewWeighted(int64(opts.Concurrency)),
		opts:       opts,
		logger:     logger,
	}
}

// Get returns markup for rawURL. An empty marker accepts any successful fetch.
func (f *Fallback) Get(ctx context.Context, rawURL, marker string) (string, error) {
	body, err := f.fetcher.Fetch(ctx, rawURL)

	var reason string
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return "", err
		}
		reason = "fetch_failed"
	case marker == "" || HasMarker(body, marker):
		return body, nil
	default:
		reason = "marker_missing"
		err = fmt.Errorf("%w: %q", ErrStructuralMismatch, marker)
	}

	if f.renderer == nil {
		if reason == "marker_missing" {
			f.logger.Debug("Marker missing and rendering disabled, using fetched markup", zap.String("url", rawURL), zap.String("marker", marker))
			return body, nil
		}
		return "", err
	}

	f.logger.Info("Falling back to rendering", zap.String("url", rawURL), zap.String("reason", reason), zap.Error(err))
	rendered, renderErr := f.Render(ctx, rawURL, marker)
	if renderErr != nil {
		metrics.RenderFallbacksTotal.WithLabelValues(reason, "failed").Inc()
		return "", fmt.Errorf("%w: %w (after %w)", ErrRenderFailure, renderErr, err)
	}
	metrics.RenderFallbacksTotal.WithLabelValues(reason, "ok").Inc()
	return rendered, nil
}

// Render loads rawURL in the browser engine, waiting for marker when given.
// At most Concurrency renders run at once.
func (f *Fallback) Render(ctx context.Context, rawURL, marker string) (string, error) {
	if f.renderer == nil {
		return "", errors.New("rendering is disabled")
	}
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer f.sem.Release(1)

	var ua string
	if f.identities != nil {
		ua = f.identities.Next().UserAgent
	}

	start := time.Now()
	html, err := f.renderer.Render(ctx, repository.RenderRequest{
		URL:            rawURL,
		ExpectedMarker: marker,
		UserAgent:      ua,
		NavTimeout:     f.opts.NavTimeout,
		WaitTimeout:    f.opts.WaitTimeout,
	})
	metrics.RenderDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	return html, nil
}

// HasMarker reports whether markup contains an element matching the CSS selector.
func HasMarker(markup, marker string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return false
	}
	return doc.Find(marker).Length() > 0
}
