package repository

import (
	"context"
	"time"

	"github.com/user/brandwatch/internal/entity"
)

// ListingRepository defines the contract for persisting canonical listings.
// The repository is the sole arbiter of novelty.
type ListingRepository interface {
	// Exists reports whether a listing with the given ID has been stored.
	Exists(ctx context.Context, id string) (bool, error)
	// Upsert inserts the listing or, when its ID is already known, refreshes title, price, image and
	// LastSeenAt and forces IsActive back to true. It returns true only on first insertion.
	// On return listing.FirstSeenAt holds the stored first-seen time.
	Upsert(ctx context.Context, listing *entity.Listing) (bool, error)
	// MarkAllInactiveExcept flags every active listing of the platform whose ID is not in seenIDs as
	// inactive and returns how many were flagged.
	MarkAllInactiveExcept(ctx context.Context, platform entity.PlatformID, seenIDs []string) (int64, error)
	// StatsByBrand aggregates stored listings by brand tag.
	StatsByBrand(ctx context.Context) ([]entity.BrandStat, error)
	// DeleteOlderThan removes listings not seen since cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}
