package observability

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

type StageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
}

type Counter struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type StageSnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
	Counters    []Counter    `json:"counters,omitempty"`
}

// stageTargets are the p95 budgets reported next to each stage.
var stageTargets = map[string]float64{
	"decode":      15,
	"detect":      30,
	"classify":    120,
	"persist":     50,
	"frame_total": 200,
}

// StageWindow keeps the last N latency samples per stage plus simple event
// counters, for the in-process latency report.
type StageWindow struct {
	mu       sync.RWMutex
	size     int
	stages   map[string]*ring
	counters map[string]int
}

type ring struct {
	values []float64
	next   int
	filled bool
	last   float64
}

func NewStageWindow(size int) *StageWindow {
	if size <= 0 {
		size = 512
	}
	return &StageWindow{
		size:     size,
		stages:   make(map[string]*ring),
		counters: make(map[string]int),
	}
}

func (w *StageWindow) Observe(stage string, d time.Duration) {
	ms := durationMS(d)
	if w == nil || stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	r, ok := w.stages[stage]
	if !ok {
		r = &ring{values: make([]float64, w.size)}
		w.stages[stage] = r
	}
	r.push(ms)
}

func (w *StageWindow) Count(name string) {
	if w == nil {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.mu.Lock()
	w.counters[name]++
	w.mu.Unlock()
}

func (w *StageWindow) Reset() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stages = make(map[string]*ring)
	w.counters = make(map[string]int)
}

func (w *StageWindow) Snapshot() StageSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	snap := StageSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      make([]StageStats, 0, len(w.stages)),
	}
	for _, stage := range sortedKeys(w.stages) {
		if st, ok := w.stages[stage].stats(stage); ok {
			snap.Stages = append(snap.Stages, st)
		}
	}
	for _, name := range sortedKeys(w.counters) {
		if n := w.counters[name]; n > 0 {
			snap.Counters = append(snap.Counters, Counter{Name: name, Count: n})
		}
	}
	return snap
}

func (r *ring) push(ms float64) {
	r.values[r.next] = ms
	r.last = ms
	r.next++
	if r.next >= len(r.values) {
		r.next = 0
		r.filled = true
	}
}

func (r *ring) stats(stage string) (StageStats, bool) {
	n := r.next
	if r.filled {
		n = len(r.values)
	}
	if n == 0 {
		return StageStats{}, false
	}
	samples := append([]float64(nil), r.values[:n]...)
	sort.Float64s(samples)

	sum := 0.0
	for _, v := range samples {
		sum += v
	}
	return StageStats{
		Stage:       stage,
		Samples:     n,
		LastMS:      round2(r.last),
		AvgMS:       round2(sum / float64(n)),
		P50MS:       round2(quantile(samples, 0.50)),
		P95MS:       round2(quantile(samples, 0.95)),
		P99MS:       round2(quantile(samples, 0.99)),
		TargetP95MS: stageTargets[stage],
	}, true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// quantile interpolates linearly between the closest ranks of sorted.
func quantile(sorted []float64, q float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[len(sorted)-1]
	}
	idx := q * float64(len(sorted)-1)
	lo, hi := int(math.Floor(idx)), int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
