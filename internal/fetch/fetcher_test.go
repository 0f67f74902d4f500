package fetch

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/brandwatch/internal/proxy"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// scriptedTransport answers each request with the next scripted step.
type scriptedTransport struct {
	mu    sync.Mutex
	steps []func(*http.Request) (*http.Response, error)
	calls int
	uas   []string
}

func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uas = append(s.uas, req.Header.Get("User-Agent"))
	step := s.steps[s.calls]
	s.calls++
	return step(req)
}

func status(code int, body string) func(*http.Request) (*http.Response, error) {
	return func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: code,
			Status:     http.StatusText(code),
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     make(http.Header),
			Request:    req,
		}, nil
	}
}

func fail(err error) func(*http.Request) (*http.Response, error) {
	return func(*http.Request) (*http.Response, error) { return nil, err }
}

type fakeIdentities struct {
	mu     sync.Mutex
	n      int
	proxy  string
	marked []string
}

func (f *fakeIdentities) Next() proxy.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return proxy.Identity{UserAgent: "ua-" + string(rune('a'+f.n-1)), Proxy: f.proxy}
}

func (f *fakeIdentities) MarkBad(addr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, addr)
}

func newTestFetcher(ids IdentitySource, rt http.RoundTripper, retries int) (*Fetcher, *[]time.Duration) {
	f := NewFetcher(ids, Options{Timeout: time.Second, MaxRetries: retries, BaseDelay: 100 * time.Millisecond, Concurrency: 4}, zap.NewNop())
	var sleeps []time.Duration
	f.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	f.transportFor = func(string) (http.RoundTripper, error) { return rt, nil }
	return f, &sleeps
}

func TestFetch_RetriesTimeoutsThenSucceeds(t *testing.T) {
	rt := &scriptedTransport{steps: []func(*http.Request) (*http.Response, error){
		fail(timeoutError{}),
		fail(timeoutError{}),
		status(http.StatusOK, "<html>ok</html>"),
	}}
	ids := &fakeIdentities{}
	f, sleeps := newTestFetcher(ids, rt, 3)

	body, err := f.Fetch(context.Background(), "https://jp.mercari.com/search?keyword=kmrii")

	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", body)
	assert.Equal(t, 3, rt.calls)
	require.Len(t, *sleeps, 2)
	assert.Less(t, (*sleeps)[0], (*sleeps)[1], "backoff grows between attempts")
	assert.Equal(t, []string{"ua-a", "ua-b", "ua-c"}, rt.uas, "every attempt uses a fresh identity")
}

func TestFetch_TerminalStatusDoesNotRetry(t *testing.T) {
	for _, code := range []int{http.StatusForbidden, http.StatusNotFound} {
		rt := &scriptedTransport{steps: []func(*http.Request) (*http.Response, error){
			status(code, "nope"),
		}}
		f, sleeps := newTestFetcher(&fakeIdentities{}, rt, 3)

		_, err := f.Fetch(context.Background(), "https://example.com/")

		require.Error(t, err)
		assert.Equal(t, 1, rt.calls)
		assert.Empty(t, *sleeps)
		assert.ErrorIs(t, err, ErrTerminalHTTP)

		var failure *Failure
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, KindHTTPError, failure.Kind)
		assert.Equal(t, code, failure.Status)
	}
}

func TestFetch_ExhaustedRetries(t *testing.T) {
	rt := &scriptedTransport{steps: []func(*http.Request) (*http.Response, error){
		status(http.StatusServiceUnavailable, ""),
		status(http.StatusTooManyRequests, ""),
		status(http.StatusInternalServerError, ""),
	}}
	f, sleeps := newTestFetcher(&fakeIdentities{}, rt, 3)

	_, err := f.Fetch(context.Background(), "https://example.com/")

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 3, failure.Attempts)
	assert.Equal(t, http.StatusInternalServerError, failure.Status)
	assert.ErrorIs(t, err, ErrTransientNetwork)
	assert.NotErrorIs(t, err, ErrTerminalHTTP)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *sleeps)
}

func TestFetch_ProxyErrorMarksBad(t *testing.T) {
	proxyErr := &net.OpError{Op: "proxyconnect", Net: "tcp", Err: errors.New("connection refused")}
	rt := &scriptedTransport{steps: []func(*http.Request) (*http.Response, error){
		fail(proxyErr),
		status(http.StatusOK, "fine"),
	}}
	ids := &fakeIdentities{proxy: "http://10.0.0.1:8080"}
	f, _ := newTestFetcher(ids, rt, 3)

	body, err := f.Fetch(context.Background(), "https://example.com/")

	require.NoError(t, err)
	assert.Equal(t, "fine", body)
	assert.Equal(t, []string{"http://10.0.0.1:8080"}, ids.marked)
}

func TestFetch_CancelledContextStops(t *testing.T) {
	rt := &scriptedTransport{steps: []func(*http.Request) (*http.Response, error){
		fail(timeoutError{}),
		status(http.StatusOK, "never"),
	}}
	f, _ := newTestFetcher(&fakeIdentities{}, rt, 3)
	f.sleep = func(context.Context, time.Duration) error { return context.Canceled }

	_, err := f.Fetch(context.Background(), "https://example.com/")

	require.Error(t, err)
	assert.Equal(t, 1, rt.calls)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		viaProxy bool
		want     Kind
	}{
		{"deadline", context.DeadlineExceeded, false, KindTimeout},
		{"net timeout", timeoutError{}, false, KindTimeout},
		{"proxyconnect", &net.OpError{Op: "proxyconnect", Err: errors.New("x")}, true, KindProxyError},
		{"dial via proxy", &net.OpError{Op: "dial", Err: errors.New("refused")}, true, KindProxyError},
		{"dial direct", &net.OpError{Op: "dial", Err: errors.New("refused")}, false, KindConnectionError},
		{"eof", io.EOF, false, KindConnectionError},
		{"dns", &net.DNSError{Err: "no such host", Name: "x"}, false, KindConnectionError},
		{"other", errors.New("weird"), false, KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err, tt.viaProxy))
		})
	}
}

func TestFetch_RealServer(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		if hits == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("<div class='item'>x</div>"))
	}))
	defer srv.Close()

	f := NewFetcher(proxy.NewRotator(nil, 3, zap.NewNop()), Options{Timeout: 2 * time.Second, MaxRetries: 2, Concurrency: 2}, zap.NewNop())
	f.sleep = func(context.Context, time.Duration) error { return nil }

	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, body, "item")
	assert.Equal(t, 2, hits)
}
