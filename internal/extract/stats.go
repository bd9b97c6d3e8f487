package extract

import (
	"slices"
	"sync"
	"time"
)

// call is one completion attempt as seen by the client.
type call struct {
	at         time.Time
	model      string
	durationMs int64
	failed     bool
}

// StatsSnapshot aggregates the completions recorded within the window.
// Latency figures cover successful calls only.
type StatsSnapshot struct {
	Count    int            `json:"count"`
	Failures int            `json:"failures"`
	LastAt   *time.Time     `json:"last_at,omitempty"`
	ByModel  map[string]int `json:"by_model,omitempty"`
	MinMs    int64          `json:"min_ms"`
	MaxMs    int64          `json:"max_ms"`
	AvgMs    float64        `json:"avg_ms"`
	P50Ms    float64        `json:"p50_ms"`
	P95Ms    float64        `json:"p95_ms"`
	P99Ms    float64        `json:"p99_ms"`
}

// LLMStats keeps a rolling window of routing completions.
type LLMStats struct {
	mu     sync.Mutex
	calls  []call
	window time.Duration
}

func NewLLMStats(window time.Duration) *LLMStats {
	if window <= 0 {
		window = time.Hour
	}
	return &LLMStats{
		calls:  make([]call, 0, 64),
		window: window,
	}
}

// Record adds a successful completion by model that took durationMs.
func (s *LLMStats) Record(model string, durationMs int64) {
	s.add(call{model: model, durationMs: max(durationMs, 0)})
}

// RecordFailure adds a completion by model that returned an error.
func (s *LLMStats) RecordFailure(model string) {
	s.add(call{model: model, failed: true})
}

func (s *LLMStats) add(c call) {
	c.at = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(c.at)
	s.calls = append(s.calls, c)
}

func (s *LLMStats) Snapshot() StatsSnapshot {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	if len(s.calls) == 0 {
		return StatsSnapshot{}
	}

	last := s.calls[len(s.calls)-1].at
	snap := StatsSnapshot{
		LastAt:  &last,
		ByModel: make(map[string]int),
	}
	var (
		latencies []int64
		sum       int64
	)
	for _, c := range s.calls {
		if c.model != "" {
			snap.ByModel[c.model]++
		}
		if c.failed {
			snap.Failures++
			continue
		}
		latencies = append(latencies, c.durationMs)
		sum += c.durationMs
	}
	snap.Count = len(latencies)
	if snap.Count == 0 {
		return snap
	}

	slices.Sort(latencies)
	snap.MinMs = latencies[0]
	snap.MaxMs = latencies[len(latencies)-1]
	snap.AvgMs = float64(sum) / float64(len(latencies))
	snap.P50Ms = percentile(latencies, 50)
	snap.P95Ms = percentile(latencies, 95)
	snap.P99Ms = percentile(latencies, 99)
	return snap
}

func (s *LLMStats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.window)
	s.calls = slices.DeleteFunc(s.calls, func(c call) bool {
		return c.at.Before(cutoff)
	})
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []int64, pct float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case pct <= 0:
		return float64(sorted[0])
	case pct >= 100:
		return float64(sorted[len(sorted)-1])
	}

	rank := float64(len(sorted)-1) * pct / 100
	lower := int(rank)
	if lower+1 >= len(sorted) {
		return float64(sorted[lower])
	}
	lo, hi := float64(sorted[lower]), float64(sorted[lower+1])
	return lo + (hi-lo)*(rank-float64(lower))
}
