package request

// RunRequest starts an on-demand search. Keywords win over Brands; with
// neither the configured mode decides.
type RunRequest struct {
	Keywords  []string `json:"keywords"`
	Brands    []string `json:"brands"`
	Platforms []string `json:"platforms"`
	Wait      bool     `json:"wait"` // respond with the result instead of 202
}

// ModeRequest changes scheduler settings. Absent fields are left unchanged.
type ModeRequest struct {
	Mode                 string `json:"mode"` // "selected" or "auto"
	Turbo                *bool  `json:"turbo"`
	IntervalMinutes      int    `json:"interval_minutes"`
	TurboIntervalMinutes int    `json:"turbo_interval_minutes"`
}

type AddProxiesRequest struct {
	Addresses []string `json:"addresses"`
}
