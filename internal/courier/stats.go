package courier

import (
	"sync"
	"time"
)

// Stats aggregates pass results across the process lifetime. It is the only
// piece of state shared with the status interface, so it carries its own
// lock.
type Stats struct {
	mu sync.Mutex

	startedAt   time.Time
	passes      int
	skipped     int
	totals      PassStats
	lastPass    time.Time
	lastTrigger string
	lastError   string
}

// StatsSnapshot is a point-in-time copy of Stats, safe to hand out.
type StatsSnapshot struct {
	StartedAt   time.Time `json:"started_at"`
	Uptime      string    `json:"uptime"`
	Passes      int       `json:"passes"`
	Skipped     int       `json:"skipped_triggers"`
	Listed      int       `json:"messages_listed"`
	Forwarded   int       `json:"messages_forwarded"`
	Filtered    int       `json:"messages_filtered"`
	Failed      int       `json:"messages_failed"`
	LastPass    time.Time `json:"last_pass"`
	LastTrigger string    `json:"last_trigger,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// NewStats starts counting from now.
func NewStats() *Stats {
	return &Stats{startedAt: time.Now()}
}

// RecordPass folds one pass result into the totals.
func (s *Stats) RecordPass(trigger string, ps PassStats, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.passes++
	s.totals.Listed += ps.Listed
	s.totals.Forwarded += ps.Forwarded
	s.totals.Filtered += ps.Filtered
	s.totals.Failed += ps.Failed
	s.lastPass = time.Now()
	s.lastTrigger = trigger
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastError = ""
	}
}

// RecordSkip counts a trigger dropped by the overlap guard.
func (s *Stats) RecordSkip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped++
}

// Snapshot returns a copy of the current totals.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StatsSnapshot{
		StartedAt:   s.startedAt,
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
		Passes:      s.passes,
		Skipped:     s.skipped,
		Listed:      s.totals.Listed,
		Forwarded:   s.totals.Forwarded,
		Filtered:    s.totals.Filtered,
		Failed:      s.totals.Failed,
		LastPass:    s.lastPass,
		LastTrigger: s.lastTrigger,
		LastError:   s.lastError,
	}
}
