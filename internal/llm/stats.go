package llm

import (
	"slices"
	"sync"
	"time"
)

// Outcome classifies a single gateway attempt.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeError       Outcome = "error"
)

type sample struct {
	at      time.Time
	ms      int64
	outcome Outcome
}

// StatsSnapshot aggregates the calls still inside the window.
type StatsSnapshot struct {
	Count       int     `json:"count"`
	Failures    int     `json:"failures"`
	RateLimited int     `json:"rate_limited"`
	Timeouts    int     `json:"timeouts"`
	MinMs       int64   `json:"min_ms"`
	MaxMs       int64   `json:"max_ms"`
	AvgMs       float64 `json:"avg_ms"`
	P50Ms       float64 `json:"p50_ms"`
	P95Ms       float64 `json:"p95_ms"`
	P99Ms       float64 `json:"p99_ms"`
}

// LLMStats keeps a rolling window of gateway call latencies and outcomes.
// Latency percentiles only cover successful calls.
type LLMStats struct {
	mu      sync.Mutex
	samples []sample
	window  time.Duration
}

func NewLLMStats(window time.Duration) *LLMStats {
	if window <= 0 {
		window = time.Hour
	}
	return &LLMStats{
		samples: make([]sample, 0, 128),
		window:  window,
	}
}

// Record adds a successful call.
func (s *LLMStats) Record(durationMs int64) {
	s.Observe(durationMs, OutcomeOK)
}

// Observe adds one attempt with its outcome.
func (s *LLMStats) Observe(durationMs int64, outcome Outcome) {
	if s == nil {
		return
	}
	if durationMs < 0 {
		durationMs = 0
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)
	s.samples = append(s.samples, sample{at: now, ms: durationMs, outcome: outcome})
}

func (s *LLMStats) Snapshot() StatsSnapshot {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)

	var snap StatsSnapshot
	values := make([]int64, 0, len(s.samples))
	var sum int64
	for _, sm := range s.samples {
		switch sm.outcome {
		case OutcomeOK:
			values = append(values, sm.ms)
			sum += sm.ms
			continue
		case OutcomeRateLimited:
			snap.RateLimited++
		case OutcomeTimeout:
			snap.Timeouts++
		}
		snap.Failures++
	}
	snap.Count = len(values)
	if len(values) == 0 {
		return snap
	}
	slices.Sort(values)

	snap.MinMs = values[0]
	snap.MaxMs = values[len(values)-1]
	snap.AvgMs = float64(sum) / float64(len(values))
	snap.P50Ms = percentile(values, 50)
	snap.P95Ms = percentile(values, 95)
	snap.P99Ms = percentile(values, 99)
	return snap
}

func (s *LLMStats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.window)
	s.samples = slices.DeleteFunc(s.samples, func(sm sample) bool {
		return sm.at.Before(cutoff)
	})
}

// percentile interpolates linearly between the two nearest ranks.
func percentile(sorted []int64, pct float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case pct <= 0:
		return float64(sorted[0])
	case pct >= 100:
		return float64(sorted[len(sorted)-1])
	}
	idx := float64(len(sorted)-1) * pct / 100
	lower := int(idx)
	if lower+1 >= len(sorted) {
		return float64(sorted[lower])
	}
	frac := idx - float64(lower)
	lo, hi := float64(sorted[lower]), float64(sorted[lower+1])
	return lo + (hi-lo)*frac
}
