package usecase

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/user/brandwatch/internal/entity"
)

var ErrRunInProgress = errors.New("a search run is already in progress")

const (
	ModeSelected = "selected"
	ModeAuto     = "auto"
)

// StopToken is the cooperative stop signal of a single run.
type StopToken struct {
	ch <-chan struct{}
}

// Done is closed once a stop was requested for the run.
func (t StopToken) Done() <-chan struct{} { return t.ch }

func (t StopToken) Stopped() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

// PlatformCounters accumulate across runs for one platform.
type PlatformCounters struct {
	Checks   int `json:"checks"`
	Finds    int `json:"finds"`
	Failures int `json:"failures"`
}

// StatusSnapshot is a copy of the run state safe to hand to callers.
type StatusSnapshot struct {
	Running       bool                                   `json:"running"`
	Paused        bool                                   `json:"paused"`
	Turbo         bool                                   `json:"turbo"`
	StopRequested bool                                   `json:"stop_requested"`
	Mode          string                                 `json:"mode"`
	RunID         string                                 `json:"run_id,omitempty"`
	LastRunAt     time.Time                              `json:"last_run_at"`
	Interval      time.Duration                          `json:"interval"`
	TurboInterval time.Duration                          `json:"turbo_interval"`
	TotalChecks   int                                    `json:"total_checks"`
	TotalFinds    int                                    `json:"total_finds"`
	Platforms     map[entity.PlatformID]PlatformCounters `json:"platforms"`
	LastSummary   *entity.RunSummary                     `json:"last_summary,omitempty"`
}

// RunState is the single process-wide search state shared by the scheduler,
// the orchestrator and the control surface. All access goes through its methods.
type RunState struct {
	mu sync.Mutex

	running   bool
	paused    bool
	turbo     bool
	mode      string
	runID     string
	stop      chan struct{}
	stopped   bool
	lastRunAt time.Time

	interval      time.Duration
	turboInterval time.Duration

	counters    map[entity.PlatformID]*PlatformCounters
	totalChecks int
	totalFinds  int
	lastSummary *entity.RunSummary
}

func NewRunState(mode string, interval, turboInterval time.Duration) *RunState {
	if mode != ModeAuto {
		mode = ModeSelected
	}
	return &RunState{
		mode:          mode,
		interval:      interval,
		turboInterval: turboInterval,
		counters:      make(map[entity.PlatformID]*PlatformCounters),
	}
}

// TryBegin marks a run as started at now, which also becomes the new
// last-run baseline. It fails when a run is already in flight. Every run gets
// a fresh stop token so a stop request never carries over.
func (s *RunState) TryBegin(runID string, now time.Time) (StopToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return StopToken{}, ErrRunInProgress
	}
	s.running = true
	s.runID = runID
	s.stop = make(chan struct{})
	s.stopped = false
	s.lastRunAt = now
	return StopToken{ch: s.stop}, nil
}

// End clears the running flag and records the run summary.
func (s *RunState) End(summary entity.RunSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	s.runID = ""
	s.stop = nil
	s.stopped = false
	s.lastSummary = &summary
}

// RequestStop signals the current run to stop. It reports false when no run is active.
func (s *RunState) RequestStop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return false
	}
	if !s.stopped {
		close(s.stop)
		s.stopped = true
	}
	return true
}

func (s *RunState) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *RunState) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

func (s *RunState) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *RunState) SetTurbo(turbo bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turbo = turbo
}

func (s *RunState) Turbo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turbo
}

func (s *RunState) SetMode(mode string) error {
	if mode != ModeSelected && mode != ModeAuto {
		return errors.New("mode must be selected or auto")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	return nil
}

func (s *RunState) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetIntervals changes the scheduling intervals. Zero leaves a value unchanged.
func (s *RunState) SetIntervals(interval, turboInterval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if interval > 0 {
		s.interval = interval
	}
	if turboInterval > 0 {
		s.turboInterval = turboInterval
	}
}

// Interval is the interval currently in effect.
func (s *RunState) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turbo {
		return s.turboInterval
	}
	return s.interval
}

// SetBaseline sets the last-run timestamp without starting a run.
func (s *RunState) SetBaseline(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRunAt = now
}

func (s *RunState) LastRunAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRunAt
}

// RecordCheck adds one processed work item to the platform counters.
func (s *RunState) RecordCheck(platform entity.PlatformID, finds int, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[platform]
	if !ok {
		c = &PlatformCounters{}
		s.counters[platform] = c
	}
	c.Checks++
	c.Finds += finds
	if failed {
		c.Failures++
	}
	s.totalChecks++
	s.totalFinds += finds
}

func (s *RunState) Snapshot() StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatusSnapshot{
		Running:       s.running,
		Paused:        s.paused,
		Turbo:         s.turbo,
		StopRequested: s.stopped,
		Mode:          s.mode,
		RunID:         s.runID,
		LastRunAt:     s.lastRunAt,
		Interval:      s.interval,
		TurboInterval: s.turboInterval,
		TotalChecks:   s.totalChecks,
		TotalFinds:    s.totalFinds,
		Platforms:     make(map[entity.PlatformID]PlatformCounters, len(s.counters)),
	}
	for p, c := range s.counters {
		snap.Platforms[p] = *c
	}
	if s.lastSummary != nil {
		sum := *s.lastSummary
		sum.Brands = append([]string(nil), sum.Brands...)
		snap.LastSummary = &sum
	}
	return snap
}

// SortedPlatforms returns the snapshot's platforms in name order.
func (s StatusSnapshot) SortedPlatforms() []entity.PlatformID {
	out := make([]entity.PlatformID, 0, len(s.Platforms))
	for p := range s.Platforms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
