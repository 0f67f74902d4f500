package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/user/brandwatch/internal/entity"
	"github.com/user/brandwatch/internal/repository"
)

// ListingRepoImpl keeps listings in process memory.
type ListingRepoImpl struct {
	mu       sync.RWMutex
	listings map[string]entity.Listing
}

func NewListingRepo() *ListingRepoImpl {
	return &ListingRepoImpl{listings: make(map[string]entity.Listing)}
}

var _ repository.ListingRepository = (*ListingRepoImpl)(nil)

func (r *ListingRepoImpl) Exists(_ context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.listings[id]
	return ok, nil
}

func (r *ListingRepoImpl) Upsert(_ context.Context, l *entity.Listing) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.listings[l.ID]
	if !ok {
		l.IsActive = true
		r.listings[l.ID] = *l
		return true, nil
	}

	existing.Title = l.Title
	existing.PriceText = l.PriceText
	existing.URL = l.URL
	if l.ImageURL != "" {
		existing.ImageURL = l.ImageURL
	}
	if existing.Brand == "" {
		existing.Brand = l.Brand
	}
	existing.LastSeenAt = l.LastSeenAt
	existing.IsActive = true
	r.listings[l.ID] = existing

	*l = existing
	return false, nil
}

func (r *ListingRepoImpl) MarkAllInactiveExcept(_ context.Context, platform entity.PlatformID, seenIDs []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(seenIDs))
	for _, id := range seenIDs {
		seen[id] = struct{}{}
	}
	var n int64
	for id, l := range r.listings {
		if l.Platform != platform || !l.IsActive {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		l.IsActive = false
		r.listings[id] = l
		n++
	}
	return n, nil
}

func (r *ListingRepoImpl) StatsByBrand(_ context.Context) ([]entity.BrandStat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byBrand := make(map[string]*entity.BrandStat)
	for _, l := range r.listings {
		if l.Brand == "" {
			continue
		}
		s, ok := byBrand[l.Brand]
		if !ok {
			s = &entity.BrandStat{Brand: l.Brand}
			byBrand[l.Brand] = s
		}
		s.Total++
		if l.IsActive {
			s.Active++
		}
	}

	out := make([]entity.BrandStat, 0, len(byBrand))
	for _, s := range byBrand {
		out = append(out, *s)
	}
	sortStats(out)
	return out, nil
}

func (r *ListingRepoImpl) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, l := range r.listings {
		if l.LastSeenAt.Before(cutoff) {
			delete(r.listings, id)
			n++
		}
	}
	return n, nil
}

// Get returns a stored listing.
func (r *ListingRepoImpl) Get(id string) (entity.Listing, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.listings[id]
	return l, ok
}

func (r *ListingRepoImpl) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listings)
}

func (r *ListingRepoImpl) Close() error { return nil }

// sortStats orders by total descending, then brand.
func sortStats(stats []entity.BrandStat) {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Total != stats[j].Total {
			return stats[i].Total > stats[j].Total
		}
		return stats[i].Brand < stats[j].Brand
	})
}
