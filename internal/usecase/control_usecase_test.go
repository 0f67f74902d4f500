package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/brandwatch/internal/adapter/memory"
	"github.com/user/brandwatch/internal/entity"
)

type fakeKeywords struct{}

func (fakeKeywords) Names() []string { return []string{"kmrii", "gunda"} }

func (fakeKeywords) Keywords(names []string) []string {
	var out []string
	for _, n := range names {
		out = append(out, n)
		if n == "kmrii" {
			out = append(out, "ケムリ")
		}
	}
	return out
}

func (k fakeKeywords) AllKeywords() []string { return k.Keywords(k.Names()) }

type fakeProxies struct{ addrs []string }

func (f *fakeProxies) Entries() []entity.ProxyEntry {
	var out []entity.ProxyEntry
	for _, a := range f.addrs {
		out = append(out, entity.ProxyEntry{Address: a})
	}
	return out
}

func (f *fakeProxies) Add(addrs ...string) { f.addrs = addrs }

type fakeProxyStore struct{ saved []string }

func (f *fakeProxyStore) Load() ([]string, error) { return f.saved, nil }

func (f *fakeProxyStore) Append(addrs ...string) ([]string, error) {
	f.saved = append(f.saved, addrs...)
	return f.saved, nil
}

func (f *fakeProxyStore) Remove(...string) ([]string, error) { return f.saved, nil }

func newTestController(t *testing.T) (*controlUseCase, *RunState, *memory.ListingRepoImpl) {
	t.Helper()
	reg := fakeRegistry{adapters: []fakeAdapter{{platform: "Mercari JP"}, {platform: "eBay"}}}
	state := NewRunState(ModeSelected, time.Hour, 5*time.Minute)
	repo := memory.NewListingRepo()
	orch := NewOrchestrator(state, reg, &echoPages{}, NewDeduplicator(repo, staticBrands{}), nil, repo, SearchOptions{Workers: 2}, zap.NewNop())
	c := NewController(state, orch, reg, fakeKeywords{}, repo, &fakeProxies{}, &fakeProxyStore{}, ControlOptions{
		Workers:          2,
		TurboWorkers:     8,
		AutoMaxWorkItems: 3,
		Retention:        24 * time.Hour,
	}, zap.NewNop()).(*controlUseCase)
	return c, state, repo
}

func TestPlan_Modes(t *testing.T) {
	c, state, _ := newTestController(t)

	req := c.Plan(ManualRun{}, "schedule")
	assert.Equal(t, []string{"kmrii", "ケムリ", "gunda"}, req.Keywords)
	assert.Equal(t, []entity.PlatformID{"Mercari JP", "eBay"}, req.Platforms)
	assert.Equal(t, 2, req.Concurrency)
	assert.Zero(t, req.MaxWorkItems)

	require.NoError(t, state.SetMode(ModeAuto))
	state.SetTurbo(true)
	req = c.Plan(ManualRun{}, "schedule")
	assert.Equal(t, 3, req.MaxWorkItems)
	assert.Equal(t, 8, req.Concurrency)

	req = c.Plan(ManualRun{Brands: []string{"kmrii"}, Platforms: []entity.PlatformID{"eBay"}}, "manual")
	assert.Equal(t, []string{"kmrii", "ケムリ"}, req.Keywords)
	assert.Equal(t, []entity.PlatformID{"eBay"}, req.Platforms)

	req = c.Plan(ManualRun{Keywords: []string{"raw words"}}, "manual")
	assert.Equal(t, []string{"raw words"}, req.Keywords)
}

func TestController_StartRunAndStats(t *testing.T) {
	c, _, _ := newTestController(t)

	h, err := c.StartRun(context.Background(), ManualRun{Brands: []string{"kmrii"}})
	require.NoError(t, err)
	res := <-h.Done
	assert.Equal(t, 4, res.Summary.New)
	assert.Equal(t, h.ID, res.Summary.RunID)

	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []entity.BrandStat{{Brand: "kmrii", Total: 4, Active: 4}}, stats)

	assert.False(t, c.Status().Running)
	assert.False(t, c.Stop(), "no run to stop")
}

func TestController_Sweep(t *testing.T) {
	c, _, repo := newTestController(t)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	stale := entity.FromRaw(entity.RawListing{Title: "old", URL: "https://x.example/old", Platform: "eBay"}, "", now.Add(-48*time.Hour))
	fresh := entity.FromRaw(entity.RawListing{Title: "new", URL: "https://x.example/new", Platform: "eBay"}, "", now.Add(-time.Hour))
	_, _ = repo.Upsert(context.Background(), &stale)
	_, _ = repo.Upsert(context.Background(), &fresh)

	n, err := c.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, repo.Len())
}

func TestController_Settings(t *testing.T) {
	c, state, _ := newTestController(t)

	c.Pause()
	assert.True(t, state.Paused())
	c.Resume()
	assert.False(t, state.Paused())

	assert.Error(t, c.SetIntervals(10*time.Second, 0))
	require.NoError(t, c.SetIntervals(45*time.Minute, 0))
	assert.Equal(t, 45*time.Minute, state.Interval())

	c.SetTurbo(true)
	assert.Equal(t, 5*time.Minute, state.Interval())

	assert.Error(t, c.SetMode("everything"))

	entries, err := c.AddProxies("http://1.2.3.4:80")
	require.NoError(t, err)
	assert.Equal(t, []entity.ProxyEntry{{Address: "http://1.2.3.4:80"}}, entries)
}

func TestController_StartRunRejectsUnknownPlatform(t *testing.T) {
	c, state, _ := newTestController(t)

	_, err := c.StartRun(context.Background(), ManualRun{Keywords: []string{"kmrii"}, Platforms: []entity.PlatformID{"Yahoo Moon"}})
	assert.ErrorIs(t, err, ErrInvalidRun)
	assert.False(t, state.Running(), "a rejected run never begins")

	h, err := c.StartRun(context.Background(), ManualRun{Keywords: []string{"kmrii"}, Platforms: []entity.PlatformID{"eBay"}})
	require.NoError(t, err)
	res := <-h.Done
	assert.Equal(t, 1, res.Summary.WorkItems)
}

func TestController_DryRunLeavesStoreUntouched(t *testing.T) {
	c, _, repo := newTestController(t)

	h, err := c.StartRun(context.Background(), ManualRun{Brands: []string{"kmrii"}, DryRun: true})
	require.NoError(t, err)
	res := <-h.Done
	assert.Len(t, res.New, 4)
	assert.Zero(t, repo.Len())

	req := c.Plan(ManualRun{DryRun: true}, "manual")
	assert.True(t, req.DryRun)
}
