package usecase

import (
	"context"
	"strings"
	"sync"

	"github.com/user/brandwatch/internal/entity"
	"github.com/user/brandwatch/internal/repository"
)

type fakeAdapter struct {
	platform entity.PlatformID
	panics   bool
}

func (a fakeAdapter) Platform() entity.PlatformID { return a.platform }
func (a fakeAdapter) ExpectedMarker() string      { return ".card" }

func (a fakeAdapter) SearchURLs(keyword string) []string {
	host := strings.ToLower(strings.ReplaceAll(string(a.platform), " ", "-"))
	return []string{"https://" + host + ".example/search/" + keyword + "?sort=new"}
}

func (a fakeAdapter) Extract(markup string) ([]entity.RawListing, error) {
	if a.panics {
		panic("selector engine exploded")
	}
	return []entity.RawListing{{
		Title:     "kmrii listing from " + markup,
		PriceText: "¥1,000",
		URL:       markup,
		Platform:  a.platform,
	}}, nil
}

type fakeRegistry struct {
	adapters []fakeAdapter
}

func (r fakeRegistry) Lookup(p entity.PlatformID) (repository.SiteAdapter, bool) {
	for _, a := range r.adapters {
		if a.platform == p {
			return a, true
		}
	}
	return nil, false
}

func (r fakeRegistry) Platforms() []entity.PlatformID {
	var out []entity.PlatformID
	for _, a := range r.adapters {
		out = append(out, a.platform)
	}
	return out
}

// echoPages returns the requested URL as the page markup.
type echoPages struct {
	mu     sync.Mutex
	calls  []string
	onCall func(n int)
}

func (p *echoPages) Get(_ context.Context, rawURL, _ string) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, rawURL)
	n := len(p.calls)
	p.mu.Unlock()
	if p.onCall != nil {
		p.onCall(n)
	}
	return rawURL, nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	listings  []entity.Listing
	summaries []entity.RunSummary
}

func (n *recordingNotifier) Notify(_ context.Context, l entity.Listing) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listings = append(n.listings, l)
	return nil
}

func (n *recordingNotifier) Summary(_ context.Context, s entity.RunSummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, s)
	return nil
}

type staticBrands struct{}

func (staticBrands) Detect(title string) string {
	if strings.Contains(strings.ToLower(title), "kmrii") {
		return "kmrii"
	}
	return ""
}
