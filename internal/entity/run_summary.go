package entity

import "time"

// RunSummary is reported to the notifier once a search run completes.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	WorkItems  int
	Failed     int
	Total      int      // listings extracted, including already known ones
	New        int      // listings seen for the first time
	Brands     []string // distinct brands detected across all extracted listings
	Stopped    bool     // the run was stopped before all work items were processed
}

// BrandStat aggregates stored listings per brand.
type BrandStat struct {
	Brand  string `json:"brand"`
	Total  int    `json:"total"`
	Active int    `json:"active"`
}

// ProxyEntry is a proxy address as seen by the identity rotator.
type ProxyEntry struct {
	Address string `json:"address"`
	IsBad   bool   `json:"is_bad"`
}
