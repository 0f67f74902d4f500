package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/user/brandwatch/internal/proxy"
	"github.com/user/brandwatch/pkg/metrics"
)

const maxBodyBytes = 10 << 20

// IdentitySource hands out one identity per attempt.
type IdentitySource interface {
	Next() proxy.Identity
	MarkBad(addr string)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Options configures a Fetcher.
type Options struct {
	Timeout     time.Duration // per attempt
	MaxRetries  int           // total attempts, at least 1
	BaseDelay   time.Duration // backoff before retry n is BaseDelay * 2^(n-1)
	Concurrency int           // ceiling on in-flight HTTP requests
	HostRate    float64       // requests per second per host, 0 disables
}

// Fetcher performs plain HTTP GETs with retry, backoff and identity rotation.
type Fetcher struct {
	identities IdentitySource
	opts       Options
	sem        *semaphore.Weighted
	logger     *zap.Logger

	sleep        Sleeper
	transportFor func(proxyAddr string) (http.RoundTripper, error)

	mu         sync.Mutex
	transports map[string]http.RoundTripper
	limiters   map[string]*rate.Limiter
}

func NewFetcher(identities IdentitySource, opts Options, logger *zap.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	f := &Fetcher{
		identities: identities,
		opts:       opts,
		sem:        semaphore.NewWeighted(int64(opts.Concurrency)),
		logger:     logger,
		sleep:      SleepContext,
		transports: make(map[string]http.RoundTripper),
		limiters:   make(map[string]*rate.Limiter),
	}
	f.transportFor = f.cachedTransport
	return f
}

// Fetch retrieves rawURL with the configured timeout and retry budget.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	return f.FetchWith(ctx, rawURL, f.opts.Timeout, f.opts.MaxRetries)
}

// FetchWith retrieves rawURL making at most maxRetries attempts, each with a
// fresh identity. A 200 response returns the body. 403 and 404 are terminal and
// return at once. Any other status, timeout or connection error is retried
// after BaseDelay * 2^(n-1), n being the number of attempts made so far.
// A proxy error also flags the proxy bad.
func (f *Fetcher) FetchWith(ctx context.Context, rawURL string, timeout time.Duration, maxRetries int) (string, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	host := hostOf(rawURL)

	var last *Failure
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := f.opts.BaseDelay * time.Duration(1<<(attempt-1))
			f.logger.Debug("Backing off before retry", zap.String("url", rawURL), zap.Int("attempt", attempt+1), zap.Duration("delay", delay))
			if err := f.sleep(ctx, delay); err != nil {
				return "", &Failure{Kind: KindOther, URL: rawURL, Attempts: attempt, Err: err}
			}
		}

		id := f.identities.Next()
		body, failure := f.attempt(ctx, rawURL, host, id, timeout)
		if failure == nil {
			metrics.FetchAttemptsTotal.WithLabelValues(host, "ok").Inc()
			return body, nil
		}
		failure.Attempts = attempt + 1
		last = failure
		metrics.FetchAttemptsTotal.WithLabelValues(host, failure.Kind.String()).Inc()

		if ctx.Err() != nil {
			return "", last
		}
		if failure.Kind == KindProxyError {
			f.identities.MarkBad(id.Proxy)
		}
		if failure.Kind == KindHTTPError && isTerminalStatus(failure.Status) {
			f.logger.Info("Terminal HTTP status, not retrying", zap.String("url", rawURL), zap.Int("status", failure.Status))
			return "", last
		}
		f.logger.Warn("Fetch attempt failed",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxRetries),
			zap.Stringer("kind", failure.Kind),
			zap.Int("status", failure.Status),
			zap.String("proxy", id.Proxy),
			zap.Error(failure.Err),
		)
	}
	return "", last
}

func (f *Fetcher) attempt(ctx context.Context, rawURL, host string, id proxy.Identity, timeout time.Duration) (string, *Failure) {
	if err := f.limiter(host).Wait(ctx); err != nil {
		return "", &Failure{Kind: KindOther, URL: rawURL, Err: err}
	}
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return "", &Failure{Kind: KindOther, URL: rawURL, Err: err}
	}
	defer f.sem.Release(1)

	rt, err := f.transportFor(id.Proxy)
	if err != nil {
		return "", &Failure{Kind: KindProxyError, URL: rawURL, Err: err}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &Failure{Kind: KindOther, URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", id.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ja,en-US;q=0.9,en;q=0.8")

	start := time.Now()
	client := &http.Client{Transport: rt}
	resp, err := client.Do(req)
	if err != nil {
		metrics.FetchDuration.WithLabelValues(host).Observe(time.Since(start).Seconds())
		return "", &Failure{Kind: classify(err, id.Proxy != ""), URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	metrics.FetchDuration.WithLabelValues(host).Observe(time.Since(start).Seconds())

	if resp.StatusCode == http.StatusProxyAuthRequired && id.Proxy != "" {
		return "", &Failure{Kind: KindProxyError, URL: rawURL, Status: resp.StatusCode, Err: errors.New(resp.Status)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Failure{Kind: KindHTTPError, URL: rawURL, Status: resp.StatusCode}
	}
	if err != nil {
		return "", &Failure{Kind: classify(err, false), URL: rawURL, Err: err}
	}
	return string(body), nil
}

// classify maps a transport error onto a failure kind.
func classify(err error, viaProxy bool) Kind {
	var opErr *net.OpError
	hasOpErr := errors.As(err, &opErr)
	if hasOpErr && opErr.Op == "proxyconnect" {
		return KindProxyError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if viaProxy && hasOpErr && opErr.Op == "dial" {
		// With a proxy configured every dial goes to the proxy.
		return KindProxyError
	}
	var dnsErr *net.DNSError
	if hasOpErr || errors.As(err, &dnsErr) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return KindConnectionError
	}
	return KindOther
}

func (f *Fetcher) cachedTransport(proxyAddr string) (http.RoundTripper, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if rt, ok := f.transports[proxyAddr]; ok {
		return rt, nil
	}

	t := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if proxyAddr != "" {
		u, err := url.Parse(proxyAddr)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy address %q: %w", proxyAddr, err)
		}
		t.Proxy = http.ProxyURL(u)
	}
	f.transports[proxyAddr] = t
	return t, nil
}

func (f *Fetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	if l, ok := f.limiters[host]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Inf, 0)
	if f.opts.HostRate > 0 {
		l = rate.NewLimiter(rate.Limit(f.opts.HostRate), 1)
	}
	f.limiters[host] = l
	return l
}

// SleepContext sleeps for d unless ctx is done first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
