package response

import (
	"time"

	"github.com/user/brandwatch/internal/entity"
	"github.com/user/brandwatch/internal/usecase"
)

type RunAcceptedResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	RunID   string `json:"run_id"`
}

type ListingResponse struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Price    string `json:"price"`
	URL      string `json:"url"`
	ImageURL string `json:"image_url,omitempty"`
	Platform string `json:"platform"`
	Brand    string `json:"brand,omitempty"`
}

type SummaryResponse struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	WorkItems  int       `json:"work_items"`
	Failed     int       `json:"failed"`
	Total      int       `json:"total"`
	New        int       `json:"new"`
	Brands     []string  `json:"brands"`
	Stopped    bool      `json:"stopped"`
}

// RunFinishedResponse is returned for runs requested with wait.
type RunFinishedResponse struct {
	Summary SummaryResponse   `json:"summary"`
	New     []ListingResponse `json:"new"`
}

type PlatformStatus struct {
	Platform string `json:"platform"`
	Checks   int    `json:"checks"`
	Finds    int    `json:"finds"`
	Failures int    `json:"failures"`
}

// StatusResponse is a DTO for the run state, mirroring usecase.StatusSnapshot
type StatusResponse struct {
	Running              bool             `json:"running"`
	Paused               bool             `json:"paused"`
	Turbo                bool             `json:"turbo"`
	StopRequested        bool             `json:"stop_requested"`
	Mode                 string           `json:"mode"`
	RunID                string           `json:"run_id,omitempty"`
	LastRunAt            *time.Time       `json:"last_run_at,omitempty"`
	IntervalMinutes      float64          `json:"interval_minutes"`
	TurboIntervalMinutes float64          `json:"turbo_interval_minutes"`
	TotalChecks          int              `json:"total_checks"`
	TotalFinds           int              `json:"total_finds"`
	Platforms            []PlatformStatus `json:"platforms"`
	LastSummary          *SummaryResponse `json:"last_summary,omitempty"`
}

func FromListing(l entity.Listing) ListingResponse {
	return ListingResponse{
		ID:       l.ID,
		Title:    l.Title,
		Price:    l.PriceText,
		URL:      l.URL,
		ImageURL: l.ImageURL,
		Platform: string(l.Platform),
		Brand:    l.Brand,
	}
}

func FromSummary(s entity.RunSummary) SummaryResponse {
	brands := s.Brands
	if brands == nil {
		brands = []string{}
	}
	return SummaryResponse{
		RunID:      s.RunID,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		WorkItems:  s.WorkItems,
		Failed:     s.Failed,
		Total:      s.Total,
		New:        s.New,
		Brands:     brands,
		Stopped:    s.Stopped,
	}
}

func FromResult(r usecase.RunResult) RunFinishedResponse {
	out := RunFinishedResponse{
		Summary: FromSummary(r.Summary),
		New:     make([]ListingResponse, 0, len(r.New)),
	}
	for _, l := range r.New {
		out.New = append(out.New, FromListing(l))
	}
	return out
}

func FromStatus(s usecase.StatusSnapshot) StatusResponse {
	out := StatusResponse{
		Running:              s.Running,
		Paused:               s.Paused,
		Turbo:                s.Turbo,
		StopRequested:        s.StopRequested,
		Mode:                 s.Mode,
		RunID:                s.RunID,
		IntervalMinutes:      s.Interval.Minutes(),
		TurboIntervalMinutes: s.TurboInterval.Minutes(),
		TotalChecks:          s.TotalChecks,
		TotalFinds:           s.TotalFinds,
		Platforms:            make([]PlatformStatus, 0, len(s.Platforms)),
	}
	if !s.LastRunAt.IsZero() {
		t := s.LastRunAt
		out.LastRunAt = &t
	}
	for _, p := range s.SortedPlatforms() {
		c := s.Platforms[p]
		out.Platforms = append(out.Platforms, PlatformStatus{
			Platform: string(p),
			Checks:   c.Checks,
			Finds:    c.Finds,
			Failures: c.Failures,
		})
	}
	if s.LastSummary != nil {
		sum := FromSummary(*s.LastSummary)
		out.LastSummary = &sum
	}
	return out
}
