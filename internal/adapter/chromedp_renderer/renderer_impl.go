package chromedp_renderer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/brandwatch/internal/fetch"
	"github.com/user/brandwatch/internal/repository"
)

var ErrRendererClosed = errors.New("renderer closed")

// ChromedpRenderer shares one headless browser across render calls. Each call
// gets its own tab which is closed when the call returns.
type ChromedpRenderer struct {
	opts   []chromedp.ExecAllocatorOption
	logger *zap.Logger

	mu            sync.Mutex
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc

	closed    atomic.Bool
	closeOnce sync.Once
}

var _ repository.Renderer = (*ChromedpRenderer)(nil)

// NewChromedpRenderer creates a renderer. The browser is started on first use.
func NewChromedpRenderer(logger *zap.Logger, extra ...chromedp.ExecAllocatorOption) *ChromedpRenderer {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	opts = append(opts, extra...)
	return &ChromedpRenderer{opts: opts, logger: logger}
}

// browser returns the shared browser context, starting it if needed.
// A failed start is not remembered; the next call tries again.
func (r *ChromedpRenderer) browser() (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Load() {
		return nil, ErrRendererClosed
	}
	if r.browserCtx != nil {
		return r.browserCtx, nil
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), r.opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	r.logger.Info("Render browser started")
	r.browserCtx = browserCtx
	r.cancelBrowser = cancelBrowser
	r.cancelAlloc = cancelAlloc
	return browserCtx, nil
}

// Render opens a tab, navigates, optionally waits for the expected marker and
// returns the rendered document. The tab is always closed before returning.
func (r *ChromedpRenderer) Render(ctx context.Context, req repository.RenderRequest) (string, error) {
	browserCtx, err := r.browser()
	if err != nil {
		return "", err
	}

	tabCtx, closeTab := chromedp.NewContext(browserCtx)
	defer closeTab()
	// Tabs hang off the browser context; tie them to the caller as well.
	stop := context.AfterFunc(ctx, closeTab)
	defer stop()

	// The first Run opens the tab. It must not use a deadline context, or
	// the tab would be closed when the deadline fires.
	setup := []chromedp.Action{}
	if req.UserAgent != "" {
		setup = append(setup, emulation.SetUserAgentOverride(req.UserAgent))
	}
	if err := chromedp.Run(tabCtx, setup...); err != nil {
		return "", fmt.Errorf("failed to open tab: %w", err)
	}

	navCtx, cancelNav := context.WithTimeout(tabCtx, req.NavTimeout)
	err = chromedp.Run(navCtx, chromedp.Navigate(req.URL))
	cancelNav()
	if err != nil {
		return "", fmt.Errorf("navigation failed: %w", err)
	}

	if req.ExpectedMarker != "" {
		waitCtx, cancelWait := context.WithTimeout(tabCtx, req.WaitTimeout)
		err = chromedp.Run(waitCtx, chromedp.WaitReady(req.ExpectedMarker, chromedp.ByQuery))
		cancelWait()
		if err != nil {
			return "", fmt.Errorf("%w: %q did not appear: %w", fetch.ErrStructuralMismatch, req.ExpectedMarker, err)
		}
	}

	var html string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to capture markup: %w", err)
	}

	r.logger.Debug("Rendered page", zap.String("url", req.URL), zap.Int("bytes", len(html)))
	return html, nil
}

// Close shuts the browser down. Only the first call has any effect.
func (r *ChromedpRenderer) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.cancelBrowser != nil {
			r.cancelBrowser()
			r.cancelAlloc()
			r.logger.Info("Render browser stopped")
		}
		r.browserCtx = nil
	})
	return nil
}
