package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/brandwatch/internal/entity"
)

type telegramCall struct {
	method  string
	payload map[string]any
}

func fakeTelegram(t *testing.T, rejectPhoto bool) (*httptest.Server, func() []telegramCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []telegramCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		method := parts[len(parts)-1]
		assert.Equal(t, "/botTOKEN/"+method, r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		mu.Lock()
		calls = append(calls, telegramCall{method: method, payload: payload})
		mu.Unlock()

		if method == "sendPhoto" && rejectPhoto {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: wrong file identifier"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []telegramCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]telegramCall(nil), calls...)
	}
}

func sampleListing() entity.Listing {
	return entity.Listing{
		ID:        "id1",
		Title:     "KMRII <ring> & chain",
		PriceText: "¥12,000",
		URL:       "https://jp.mercari.com/item/m1",
		ImageURL:  "https://static.mercdn.net/m1.jpg",
		Platform:  "mercari",
		Brand:     "kmrii",
	}
}

func TestTelegramNotifier_Photo(t *testing.T) {
	srv, calls := fakeTelegram(t, false)
	n := NewTelegramNotifier(srv.URL, "TOKEN", "42", zap.NewNop())

	require.NoError(t, n.Notify(context.Background(), sampleListing()))

	got := calls()
	require.Len(t, got, 1)
	assert.Equal(t, "sendPhoto", got[0].method)
	assert.Equal(t, "42", got[0].payload["chat_id"])
	assert.Contains(t, got[0].payload["caption"], "KMRII &lt;ring&gt; &amp; chain")
	assert.Equal(t, "HTML", got[0].payload["parse_mode"])
}

func TestTelegramNotifier_PhotoRejectedFallsBackToText(t *testing.T) {
	srv, calls := fakeTelegram(t, true)
	n := NewTelegramNotifier(srv.URL, "TOKEN", "42", zap.NewNop())

	require.NoError(t, n.Notify(context.Background(), sampleListing()))

	got := calls()
	require.Len(t, got, 2)
	assert.Equal(t, "sendPhoto", got[0].method)
	assert.Equal(t, "sendMessage", got[1].method)
	assert.Contains(t, got[1].payload["text"], "https://jp.mercari.com/item/m1")
}

func TestTelegramNotifier_NoImageAndSummary(t *testing.T) {
	srv, calls := fakeTelegram(t, false)
	n := NewTelegramNotifier(srv.URL, "TOKEN", "42", zap.NewNop())

	l := sampleListing()
	l.ImageURL = ""
	require.NoError(t, n.Notify(context.Background(), l))
	require.NoError(t, n.Summary(context.Background(), entity.RunSummary{Total: 5, New: 2, Brands: []string{"kmrii"}, WorkItems: 4, Failed: 1}))

	got := calls()
	require.Len(t, got, 2)
	assert.Equal(t, "sendMessage", got[0].method)
	text := got[1].payload["text"].(string)
	assert.Contains(t, text, "Found: 5")
	assert.Contains(t, text, "New: 2")
	assert.Contains(t, text, "Brands: 1")
}

func TestTelegramNotifier_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Unauthorized"}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier(srv.URL, "TOKEN", "42", zap.NewNop())
	err := n.Summary(context.Background(), entity.RunSummary{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unauthorized")
	assert.NotContains(t, err.Error(), "TOKEN")
}

type blockingNotifier struct {
	mu      sync.Mutex
	release chan struct{}
	sent    []string
	fail    bool
}

func (b *blockingNotifier) Notify(_ context.Context, l entity.Listing) error {
	if b.release != nil {
		<-b.release
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, l.ID)
	if b.fail {
		return errors.New("chat unavailable")
	}
	return nil
}

func (b *blockingNotifier) Summary(context.Context, entity.RunSummary) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, "summary")
	return nil
}

func (b *blockingNotifier) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

func TestAsyncNotifier_DoesNotBlockAndDrainsOnClose(t *testing.T) {
	inner := &blockingNotifier{release: make(chan struct{})}
	n := NewAsyncNotifier(inner, 10, 2, zap.NewNop())

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, n.Notify(context.Background(), entity.Listing{ID: "x"}))
	}
	require.NoError(t, n.Summary(context.Background(), entity.RunSummary{}))
	assert.Less(t, time.Since(start), time.Second, "enqueue never waits on delivery")
	assert.Equal(t, 0, inner.count())

	close(inner.release)
	require.NoError(t, n.Close())
	assert.Equal(t, 6, inner.count())

	assert.ErrorIs(t, n.Notify(context.Background(), entity.Listing{}), ErrNotifierClosed)
	assert.NoError(t, n.Close(), "close is idempotent")
}

func TestAsyncNotifier_DropsWhenFull(t *testing.T) {
	inner := &blockingNotifier{release: make(chan struct{})}
	n := NewAsyncNotifier(inner, 1, 1, zap.NewNop())

	// One in flight, one queued, the rest dropped.
	for i := 0; i < 10; i++ {
		require.NoError(t, n.Notify(context.Background(), entity.Listing{ID: "x"}))
	}
	close(inner.release)
	require.NoError(t, n.Close())
	assert.LessOrEqual(t, inner.count(), 2)
	assert.GreaterOrEqual(t, inner.count(), 1)
}

func TestAsyncNotifier_FailuresAreSwallowed(t *testing.T) {
	inner := &blockingNotifier{fail: true}
	n := NewAsyncNotifier(inner, 0, 0, zap.NewNop())
	assert.NoError(t, n.Notify(context.Background(), entity.Listing{ID: "a"}))
	require.NoError(t, n.Close())
	assert.Equal(t, 1, inner.count())
}
