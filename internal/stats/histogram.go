package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// RequestSummary aggregates one request name's envelopes for reporting.
type RequestSummary struct {
	Request     string
	Total       int64
	Failures    int64
	OverBudget  int64
	Outcomes    map[int]int64
	MinLatency  time.Duration
	MaxLatency  time.Duration
	MeanLatency time.Duration
	P50Latency  time.Duration
	P90Latency  time.Duration
	P99Latency  time.Duration
	Budget      time.Duration
}

type requestRecord struct {
	hist       *hdrhistogram.Histogram
	total      int64
	failures   int64
	overBudget int64
	outcomes   map[int]int64
	sumLatency time.Duration
	minLatency time.Duration
	maxLatency time.Duration
	budget     time.Duration
}

// HistogramAdapter records latency distributions per request name so the
// phase report can print percentiles against each latency budget.
type HistogramAdapter struct {
	mu      sync.Mutex
	records map[string]*requestRecord
}

func NewHistogramAdapter() *HistogramAdapter {
	return &HistogramAdapter{records: make(map[string]*requestRecord)}
}

// Process records one envelope.
func (a *HistogramAdapter) Process(env Envelope) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.records[env.Request]
	if !ok {
		// Latencies from 1µs up to 60s with 3 significant figures.
		rec = &requestRecord{
			hist:     hdrhistogram.New(1, 60_000_000, 3),
			outcomes: make(map[int]int64),
			budget:   env.ExpectedLatency,
		}
		a.records[env.Request] = rec
	}

	if env.ResponseTime > 0 {
		us := env.ResponseTime.Microseconds()
		if us < rec.hist.LowestTrackableValue() {
			us = rec.hist.LowestTrackableValue()
		}
		if us > rec.hist.HighestTrackableValue() {
			us = rec.hist.HighestTrackableValue()
		}
		_ = rec.hist.RecordValue(us)
	}

	rec.total++
	rec.sumLatency += env.ResponseTime
	if rec.minLatency == 0 || env.ResponseTime < rec.minLatency {
		rec.minLatency = env.ResponseTime
	}
	if env.ResponseTime > rec.maxLatency {
		rec.maxLatency = env.ResponseTime
	}
	rec.outcomes[env.Outcome]++
	if env.Error != "" || env.Outcome >= 400 {
		rec.failures++
	}
	if env.OverBudget() {
		rec.overBudget++
	}
	return nil
}

// Summaries returns per-request aggregates sorted by request name.
func (a *HistogramAdapter) Summaries() []RequestSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]RequestSummary, 0, len(a.records))
	for name, rec := range a.records {
		summary := RequestSummary{
			Request:    name,
			Total:      rec.total,
			Failures:   rec.failures,
			OverBudget: rec.overBudget,
			Outcomes:   make(map[int]int64, len(rec.outcomes)),
			MinLatency: rec.minLatency,
			MaxLatency: rec.maxLatency,
			Budget:     rec.budget,
		}
		for code, count := range rec.outcomes {
			summary.Outcomes[code] = count
		}
		if rec.total > 0 {
			summary.MeanLatency = time.Duration(int64(rec.sumLatency) / rec.total)
		}
		if rec.hist.TotalCount() > 0 {
			summary.P50Latency = time.Duration(rec.hist.ValueAtQuantile(50)) * time.Microsecond
			summary.P90Latency = time.Duration(rec.hist.ValueAtQuantile(90)) * time.Microsecond
			summary.P99Latency = time.Duration(rec.hist.ValueAtQuantile(99)) * time.Microsecond
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Request < out[j].Request })
	return out
}
