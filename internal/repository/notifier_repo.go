package repository

import (
	"context"

	"github.com/user/brandwatch/internal/entity"
)

// Notifier receives newly detected listings and run summaries.
// Implementations must not block the caller for long; delivery errors are
// the implementation's to log.
type Notifier interface {
	Notify(ctx context.Context, listing entity.Listing) error
	Summary(ctx context.Context, summary entity.RunSummary) error
}
