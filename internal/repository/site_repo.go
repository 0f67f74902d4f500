package repository

import "github.com/user/brandwatch/internal/entity"

// SiteAdapter defines the per-marketplace search and extraction rules.
type SiteAdapter interface {
	Platform() entity.PlatformID
	// ExpectedMarker is a CSS selector present only on a real results page.
	ExpectedMarker() string
	// SearchURLs returns the search URLs for keyword, primary first.
	SearchURLs(keyword string) []string
	// Extract parses a results page into raw listings.
	Extract(markup string) ([]entity.RawListing, error)
}

// SiteRegistry resolves platforms to their adapters.
type SiteRegistry interface {
	Lookup(platform entity.PlatformID) (SiteAdapter, bool)
	Platforms() []entity.PlatformID
}
