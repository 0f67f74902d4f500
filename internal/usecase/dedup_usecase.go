package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/user/brandwatch/internal/entity"
	"github.com/user/brandwatch/internal/repository"
)

// BrandDetector tags a title with a brand, or "" when none matches.
type BrandDetector interface {
	Detect(title string) string
}

// ProcessResult is the outcome of deduplicating one raw listing.
type ProcessResult struct {
	IsNew   bool
	Listing entity.Listing
}

// Deduplicator turns raw listings into canonical ones and decides novelty.
type Deduplicator interface {
	// Process upserts the listing. The repository decides whether it is new.
	Process(ctx context.Context, raw entity.RawListing) (ProcessResult, error)
	// Preview normalizes the listing and reports whether it would be new,
	// without writing anything.
	Preview(ctx context.Context, raw entity.RawListing) (ProcessResult, error)
}

type dedupUseCase struct {
	listings repository.ListingRepository
	brands   BrandDetector
	now      func() time.Time
}

func NewDeduplicator(listings repository.ListingRepository, brands BrandDetector) Deduplicator {
	return &dedupUseCase{
		listings: listings,
		brands:   brands,
		now:      time.Now,
	}
}

func (uc *dedupUseCase) Process(ctx context.Context, raw entity.RawListing) (ProcessResult, error) {
	listing := entity.FromRaw(raw, uc.detect(raw.Title), uc.now().UTC())

	isNew, err := uc.listings.Upsert(ctx, &listing)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("failed to upsert listing %s: %w", listing.ID, err)
	}
	return ProcessResult{IsNew: isNew, Listing: listing}, nil
}

func (uc *dedupUseCase) Preview(ctx context.Context, raw entity.RawListing) (ProcessResult, error) {
	listing := entity.FromRaw(raw, uc.detect(raw.Title), uc.now().UTC())

	known, err := uc.listings.Exists(ctx, listing.ID)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("failed to look up listing %s: %w", listing.ID, err)
	}
	return ProcessResult{IsNew: !known, Listing: listing}, nil
}

func (uc *dedupUseCase) detect(title string) string {
	if uc.brands == nil {
		return ""
	}
	return uc.brands.Detect(title)
}
