package observability

import (
	"math"
	"slices"
	"sort"
	"sync"
	"time"
)

// Call stages timed by the shell.
const (
	StageDetailsFetch = "details_fetch"
	StageConnect      = "connect"
	StageLeadDelivery = "lead_delivery"
)

type CallStageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
	Failures    int     `json:"failures"`
}

type CallStageSnapshot struct {
	GeneratedAt time.Time        `json:"generated_at"`
	WindowSize  int              `json:"window_size"`
	Stages      []CallStageStats `json:"stages"`
}

// callStageWindow keeps the last maxSamples durations per stage in a ring.
type callStageWindow struct {
	mu         sync.RWMutex
	maxSamples int
	stages     map[string]*stageRing
}

type stageRing struct {
	values   []float64
	next     int
	filled   bool
	last     float64
	failures int
}

func newCallStageWindow(maxSamples int) *callStageWindow {
	if maxSamples <= 0 {
		maxSamples = 256
	}
	return &callStageWindow{
		maxSamples: maxSamples,
		stages:     make(map[string]*stageRing),
	}
}

func (w *callStageWindow) ring(stage string) *stageRing {
	r, ok := w.stages[stage]
	if !ok {
		r = &stageRing{values: make([]float64, w.maxSamples)}
		w.stages[stage] = r
	}
	return r
}

// Observe records a stage duration. Failed attempts only count as failures.
func (w *callStageWindow) Observe(stage string, d time.Duration, failed bool) {
	if stage == "" || d < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	r := w.ring(stage)
	if failed {
		r.failures++
		return
	}
	ms := float64(d.Microseconds()) / 1000
	r.values[r.next] = ms
	r.last = ms
	r.next++
	if r.next >= len(r.values) {
		r.next = 0
		r.filled = true
	}
}

func (w *callStageWindow) Snapshot() CallStageSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	keys := make([]string, 0, len(w.stages))
	for stage := range w.stages {
		keys = append(keys, stage)
	}
	sort.Strings(keys)

	stages := make([]CallStageStats, 0, len(keys))
	for _, stage := range keys {
		r := w.stages[stage]
		n := r.next
		if r.filled {
			n = len(r.values)
		}
		stats := CallStageStats{
			Stage:       stage,
			Samples:     n,
			Failures:    r.failures,
			TargetP95MS: stageTargetP95MS(stage),
		}
		if n > 0 {
			samples := slices.Clone(r.values[:n])
			sort.Float64s(samples)
			sum := 0.0
			for _, v := range samples {
				sum += v
			}
			stats.LastMS = round2(r.last)
			stats.AvgMS = round2(sum / float64(n))
			stats.P50MS = round2(quantile(samples, 0.50))
			stats.P95MS = round2(quantile(samples, 0.95))
		}
		stages = append(stages, stats)
	}

	return CallStageSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.maxSamples,
		Stages:      stages,
	}
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := q * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func stageTargetP95MS(stage string) float64 {
	switch stage {
	case StageDetailsFetch:
		return 400
	case StageConnect:
		return 1500
	case StageLeadDelivery:
		return 800
	default:
		return 0
	}
}
