package llm

import (
	"slices"
	"sync"
	"time"
)

type sample struct {
	at      time.Time
	op      Operation
	latency time.Duration
	failed  bool
}

// LatencySnapshot aggregates the samples currently inside the window.
type LatencySnapshot struct {
	Count  int     `json:"count"`
	Errors int     `json:"errors"`
	MinMs  int64   `json:"min_ms"`
	MaxMs  int64   `json:"max_ms"`
	AvgMs  float64 `json:"avg_ms"`
	P50Ms  float64 `json:"p50_ms"`
	P95Ms  float64 `json:"p95_ms"`
	P99Ms  float64 `json:"p99_ms"`
}

// StatsReport holds the overall aggregate and one per operation.
type StatsReport struct {
	Overall LatencySnapshot               `json:"overall"`
	ByOp    map[Operation]LatencySnapshot `json:"by_operation"`
}

// Stats keeps model call latencies for a rolling window.
type Stats struct {
	mu      sync.Mutex
	samples []sample
	window  time.Duration
}

func NewStats(window time.Duration) *Stats {
	if window <= 0 {
		window = time.Hour
	}
	return &Stats{samples: make([]sample, 0, 256), window: window}
}

// Record adds one call. Negative latencies are stored as zero.
func (s *Stats) Record(op Operation, latency time.Duration, err error) {
	latency = max(latency, 0)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)
	s.samples = append(s.samples, sample{at: now, op: op, latency: latency, failed: err != nil})
}

// Report summarizes the window.
func (s *Stats) Report() StatsReport {
	now := time.Now()

	s.mu.Lock()
	s.pruneLocked(now)
	all := slices.Clone(s.samples)
	s.mu.Unlock()

	grouped := make(map[Operation][]sample)
	for _, sm := range all {
		grouped[sm.op] = append(grouped[sm.op], sm)
	}
	report := StatsReport{Overall: summarize(all), ByOp: make(map[Operation]LatencySnapshot, len(grouped))}
	for op, group := range grouped {
		report.ByOp[op] = summarize(group)
	}
	return report
}

func (s *Stats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.window)
	s.samples = slices.DeleteFunc(s.samples, func(sm sample) bool {
		return sm.at.Before(cutoff)
	})
}

func summarize(samples []sample) LatencySnapshot {
	if len(samples) == 0 {
		return LatencySnapshot{}
	}
	ms := make([]int64, 0, len(samples))
	var sum int64
	errs := 0
	for _, sm := range samples {
		v := sm.latency.Milliseconds()
		ms = append(ms, v)
		sum += v
		if sm.failed {
			errs++
		}
	}
	slices.Sort(ms)
	return LatencySnapshot{
		Count:  len(ms),
		Errors: errs,
		MinMs:  ms[0],
		MaxMs:  ms[len(ms)-1],
		AvgMs:  float64(sum) / float64(len(ms)),
		P50Ms:  percentile(ms, 50),
		P95Ms:  percentile(ms, 95),
		P99Ms:  percentile(ms, 99),
	}
}

// percentile interpolates linearly between the closest ranks.
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
	lo := int(rank)
	if lo+1 >= len(sorted) {
		return float64(sorted[lo])
	}
	frac := rank - float64(lo)
	return float64(sorted[lo]) + (float64(sorted[lo+1])-float64(sorted[lo]))*frac
}
