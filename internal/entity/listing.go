package entity

import (
	"strings"
	"time"

	"github.com/user/brandwatch/pkg/utils"
)

// PlatformID names a marketplace, e.g. "Mercari JP".
type PlatformID string

// PriceUnavailable is stored when a card carries no price. Price is display
// only and never part of a listing's identity.
const PriceUnavailable = "price unavailable"

// NoTitle is stored when a card has a link but no title text.
const NoTitle = "No title"

// RawListing is one card extracted from a search results page.
type RawListing struct {
	Title     string
	PriceText string
	URL       string
	ImageURL  string // optional
	Platform  PlatformID
}

// Listing is the canonical, deduplicated record persisted by the listing store.
type Listing struct {
	ID          string
	Title       string
	PriceText   string
	URL         string
	ImageURL    string
	Platform    PlatformID
	Brand       string // empty when no brand was detected
	FirstSeenAt time.Time
	LastSeenAt  time.Time
	IsActive    bool
}

// NewListingID fingerprints a listing from its platform, normalized URL and
// title. Two fetches of the same listing through URLs that differ only in
// volatile query parameters produce the same ID.
func NewListingID(platform PlatformID, rawURL, title string) string {
	title = strings.Join(strings.Fields(title), " ")
	return utils.HashURL(string(platform) + "_" + utils.NormalizeURL(rawURL) + "_" + title)
}

// FromRaw builds a Listing first observed at seenAt.
func FromRaw(raw RawListing, brand string, seenAt time.Time) Listing {
	return Listing{
		ID:          NewListingID(raw.Platform, raw.URL, raw.Title),
		Title:       raw.Title,
		PriceText:   raw.PriceText,
		URL:         raw.URL,
		ImageURL:    raw.ImageURL,
		Platform:    raw.Platform,
		Brand:       brand,
		FirstSeenAt: seenAt,
		LastSeenAt:  seenAt,
		IsActive:    true,
	}
}
