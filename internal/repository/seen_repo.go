package repository

import (
	"context"
	"time"
)

// SeenRepository is a short-lived cache of listing IDs known to be stored.
type SeenRepository interface {
	// MarkSeen records the ID with a specific expiry time.
	MarkSeen(ctx context.Context, id string, expiry time.Duration) error
	// IsSeen checks if the ID has been recorded recently.
	IsSeen(ctx context.Context, id string) (bool, error)
}
