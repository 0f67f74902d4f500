package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/brandwatch/internal/delivery/http/handler"
	"github.com/user/brandwatch/internal/entity"
	"github.com/user/brandwatch/internal/usecase"
)

type fakeController struct {
	mu        sync.Mutex
	running   bool
	paused    bool
	turbo     bool
	mode      string
	interval  time.Duration
	lastRun   usecase.ManualRun
	proxies   []entity.ProxyEntry
	startErr  error
	result    usecase.RunResult
	stopCalls int
}

func (f *fakeController) Launch(context.Context, time.Time, string) error { return nil }
func (f *fakeController) Sweep(context.Context) (int64, error)          { return 0, nil }

// StartRun finishes the run at once, so Status no longer reports its ID.
func (f *fakeController) StartRun(_ context.Context, run usecase.ManualRun) (usecase.RunHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return usecase.RunHandle{}, f.startErr
	}
	f.lastRun = run
	done := make(chan usecase.RunResult, 1)
	done <- f.result
	return usecase.RunHandle{ID: "run-7", Done: done}, nil
}

func (f *fakeController) Stop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return f.running
}

func (f *fakeController) Pause()           { f.mu.Lock(); f.paused = true; f.mu.Unlock() }
func (f *fakeController) Resume()          { f.mu.Lock(); f.paused = false; f.mu.Unlock() }
func (f *fakeController) SetTurbo(on bool) { f.mu.Lock(); f.turbo = on; f.mu.Unlock() }

func (f *fakeController) SetMode(mode string) error {
	if mode != usecase.ModeSelected && mode != usecase.ModeAuto {
		return assert.AnError
	}
	f.mu.Lock()
	f.mode = mode
	f.mu.Unlock()
	return nil
}

func (f *fakeController) SetIntervals(interval, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if interval > 0 {
		f.interval = interval
	}
	return nil
}

func (f *fakeController) Status() usecase.StatusSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return usecase.StatusSnapshot{
		Running:  f.running,
		Paused:   f.paused,
		Turbo:    f.turbo,
		Mode:     f.mode,
		Interval: f.interval,
		Platforms: map[entity.PlatformID]usecase.PlatformCounters{
			"eBay": {Checks: 2, Finds: 1},
		},
	}
}

func (f *fakeController) Stats(context.Context) ([]entity.BrandStat, error) {
	return []entity.BrandStat{{Brand: "kmrii", Total: 3, Active: 2}}, nil
}

func (f *fakeController) Proxies() []entity.ProxyEntry { return f.proxies }

func (f *fakeController) AddProxies(addrs ...string) ([]entity.ProxyEntry, error) {
	for _, a := range addrs {
		f.proxies = append(f.proxies, entity.ProxyEntry{Address: a})
	}
	return f.proxies, nil
}

func newTestServer(t *testing.T, ctrl *fakeController) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(handler.NewHandler(ctrl, zap.NewNop()), zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestStartRun(t *testing.T) {
	ctrl := &fakeController{}
	srv := newTestServer(t, ctrl)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/run", `{"keywords":[" kmrii ",""],"platforms":["eBay"]}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "run-7", body["run_id"], "the started run's id, not the current status")
	assert.Equal(t, []string{"kmrii"}, ctrl.lastRun.Keywords)
	assert.Equal(t, []entity.PlatformID{"eBay"}, ctrl.lastRun.Platforms)
}

func TestStartRun_EmptyBodyUsesMode(t *testing.T) {
	ctrl := &fakeController{}
	srv := newTestServer(t, ctrl)

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/run", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Empty(t, ctrl.lastRun.Keywords)
}

func TestStartRun_Wait(t *testing.T) {
	ctrl := &fakeController{result: usecase.RunResult{
		Summary: entity.RunSummary{RunID: "run-1", Total: 3, New: 1, Brands: []string{"kmrii"}},
		New:     []entity.Listing{{ID: "a", Title: "kmrii ring", URL: "https://x.example/a", Platform: "eBay"}},
	}}
	srv := newTestServer(t, ctrl)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/run", `{"brands":["kmrii"],"wait":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := body["summary"].(map[string]any)
	assert.EqualValues(t, 1, summary["new"])
	assert.Len(t, body["new"], 1)
}

func TestStartRun_Errors(t *testing.T) {
	ctrl := &fakeController{startErr: usecase.ErrRunInProgress}
	srv := newTestServer(t, ctrl)

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/run", `{}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	ctrl.startErr = usecase.ErrInvalidRun
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/run", `{"platforms":["nowhere"]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/run", `{"keywords":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStopPauseResume(t *testing.T) {
	ctrl := &fakeController{}
	srv := newTestServer(t, ctrl)

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/stop", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "nothing running")

	ctrl.running = true
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/stop", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/pause", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["paused"])

	_, body = do(t, http.MethodPost, srv.URL+"/api/resume", "")
	assert.Equal(t, false, body["paused"])
}

func TestSetMode(t *testing.T) {
	ctrl := &fakeController{mode: usecase.ModeSelected}
	srv := newTestServer(t, ctrl)

	resp, body := do(t, http.MethodPut, srv.URL+"/api/mode", `{"mode":"auto","turbo":true,"interval_minutes":45}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "auto", body["mode"])
	assert.Equal(t, true, body["turbo"])
	assert.EqualValues(t, 45, body["interval_minutes"])

	resp, _ = do(t, http.MethodPut, srv.URL+"/api/mode", `{"mode":"everything"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, srv.URL+"/api/mode", `{"interval_minutes":-1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, srv.URL+"/api/mode", `{"unknown":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusStatsHealth(t *testing.T) {
	srv := newTestServer(t, &fakeController{})

	resp, body := do(t, http.MethodGet, srv.URL+"/api/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	platforms := body["platforms"].([]any)
	require.Len(t, platforms, 1)
	assert.Equal(t, "eBay", platforms[0].(map[string]any)["platform"])

	resp, err := http.Get(srv.URL + "/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats []entity.BrandStat
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, []entity.BrandStat{{Brand: "kmrii", Total: 3, Active: 2}}, stats)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestProxies(t *testing.T) {
	ctrl := &fakeController{}
	srv := newTestServer(t, ctrl)

	resp, err := http.Get(srv.URL + "/api/proxies")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/proxies", `{"addresses":[" "]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/proxies", `{"addresses":["http://1.2.3.4:8080"]}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []entity.ProxyEntry{{Address: "http://1.2.3.4:8080"}}, ctrl.proxies)
}

func TestMetricsEndpointAndMethodRouting(t *testing.T) {
	srv := newTestServer(t, &fakeController{})

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/run")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
