package monitoring

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultLatencyWindow is the number of recent samples kept per path
const DefaultLatencyWindow = 512

// LatencySummary describes recent launch latencies in milliseconds
type LatencySummary struct {
	Count  int     `json:"count"`
	MeanMs float64 `json:"mean_ms"`
	P50Ms  float64 `json:"p50_ms"`
	P95Ms  float64 `json:"p95_ms"`
	MaxMs  float64 `json:"max_ms"`
}

// LatencyStats keeps a bounded window of samples per label
type LatencyStats struct {
	mu      sync.Mutex
	window  int
	samples map[string]*ring
}

type ring struct {
	values []float64
	next   int
	full   bool
}

// NewLatencyStats creates latency stats keeping window samples per label
func NewLatencyStats(window int) *LatencyStats {
	if window <= 0 {
		window = DefaultLatencyWindow
	}
	return &LatencyStats{
		window:  window,
		samples: make(map[string]*ring),
	}
}

// Observe records one sample
func (l *LatencyStats) Observe(label string, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.samples[label]
	if !ok {
		r = &ring{values: make([]float64, l.window)}
		l.samples[label] = r
	}
	r.values[r.next] = float64(d) / float64(time.Millisecond)
	r.next = (r.next + 1) % l.window
	if r.next == 0 {
		r.full = true
	}
}

// Summary computes the summary for one label
func (l *LatencyStats) Summary(label string) LatencySummary {
	l.mu.Lock()
	r, ok := l.samples[label]
	var values []float64
	if ok {
		n := r.next
		if r.full {
			n = l.window
		}
		values = append(values, r.values[:n]...)
	}
	l.mu.Unlock()

	if len(values) == 0 {
		return LatencySummary{}
	}
	sort.Float64s(values)

	return LatencySummary{
		Count:  len(values),
		MeanMs: stat.Mean(values, nil),
		P50Ms:  stat.Quantile(0.5, stat.Empirical, values, nil),
		P95Ms:  stat.Quantile(0.95, stat.Empirical, values, nil),
		MaxMs:  values[len(values)-1],
	}
}

// Summaries computes summaries for every label seen so far
func (l *LatencyStats) Summaries() map[string]LatencySummary {
	l.mu.Lock()
	labels := make([]string, 0, len(l.samples))
	for label := range l.samples {
		labels = append(labels, label)
	}
	l.mu.Unlock()

	out := make(map[string]LatencySummary, len(labels))
	for _, label := range labels {
		out[label] = l.Summary(label)
	}
	return out
}
