package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/radarcache/radarcache/internal/radar"
)

// savingFloor is returned for the saving phase when no history exists yet.
const savingFloor = 2 * time.Second

// Estimator keeps bounded histories of acquisition durations and produces
// phase-aware remaining-time projections for in-flight updates.
//
// Histories are in-memory only and shared across all concurrent runs; mutation
// happens under a lock, reads take snapshots. Samples from failed runs never
// reach the estimator: each run buffers its timings in a RunRecorder and the
// caller commits the recorder only on success.
type Estimator struct {
	mu     sync.Mutex
	window int

	totals []time.Duration
	phases map[radar.Phase][]time.Duration
	steps  map[string][]time.Duration
}

// NewEstimator creates an Estimator keeping the most recent window samples
// per series.
func NewEstimator(window int) *Estimator {
	if window <= 0 {
		window = 20
	}
	return &Estimator{
		window: window,
		phases: make(map[radar.Phase][]time.Duration),
		steps:  make(map[string][]time.Duration),
	}
}

// RecordTotal appends a completed update's total duration.
func (e *Estimator) RecordTotal(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.totals = appendBounded(e.totals, d, e.window)
}

// RecordPhase appends a completed phase's duration.
func (e *Estimator) RecordPhase(p radar.Phase, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.phases[p] = appendBounded(e.phases[p], d, e.window)
}

// RecordStep appends a completed step's duration.
func (e *Estimator) RecordStep(name string, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.steps[name] = appendBounded(e.steps[name], d, e.window)
}

// Commit records every sample buffered in a successful run.
func (e *Estimator) Commit(rec *RunRecorder) {
	for _, s := range rec.steps {
		e.RecordStep(s.name, s.d)
	}
	for _, p := range rec.phases {
		e.RecordPhase(p.phase, p.d)
	}
	e.RecordTotal(rec.total)
}

// EstimateRemaining projects how long the given in-flight update still needs.
// Returns false when no usable history exists; callers fall back to
// StaticEstimate in that case.
func (e *Estimator) EstimateRemaining(p radar.UpdateProgress, now time.Time, frameCount int) (time.Duration, bool) {
	e.mu.Lock()
	medTotal, haveTotal := median(e.totals)
	capAvg, haveCap := mean(e.phases[radar.PhaseCapturingFrames])
	savAvg, haveSav := mean(e.phases[radar.PhaseSaving])
	e.mu.Unlock()

	elapsed := now.Sub(p.StartedAt)

	switch p.Phase {
	case radar.PhaseInitializing:
		if !haveTotal {
			return 0, false
		}
		// Median resists outliers from occasional slow runs; 10% headroom.
		rem := time.Duration(float64(medTotal)*1.1) - elapsed
		if rem < 0 {
			rem = 0
		}
		return rem, true

	case radar.PhaseCapturingFrames:
		if p.TotalFrames > 0 && haveCap && frameCount > 0 {
			perFrame := capAvg / time.Duration(frameCount)
			remFrames := p.TotalFrames - p.CurrentFrame - 1
			if remFrames < 0 {
				remFrames = 0
			}
			rem := time.Duration(remFrames) * perFrame
			if haveSav {
				rem += savAvg
			} else {
				rem += savingFloor
			}
			return rem, true
		}
		// No per-frame history yet: scale the median total by progress.
		if haveTotal && p.TotalFrames > 0 {
			progress := float64(p.CurrentFrame+1) / float64(p.TotalFrames)
			rem := time.Duration(float64(medTotal)/progress) - elapsed
			if rem < 0 {
				rem = 0
			}
			return rem, true
		}
		return 0, false

	case radar.PhaseSaving:
		if haveSav {
			return savAvg, true
		}
		return savingFloor, true
	}

	return 0, false
}

// StaticEstimate is the configuration-derived fallback used when no metrics
// history exists at all, so a first-ever run still returns a sane ETA.
func StaticEstimate(baseOverhead, tileRenderWait, perFrameOverhead time.Duration, frameCount int) time.Duration {
	return baseOverhead + time.Duration(frameCount)*(tileRenderWait+perFrameOverhead)
}

func appendBounded(samples []time.Duration, d time.Duration, window int) []time.Duration {
	samples = append(samples, d)
	if len(samples) > window {
		samples = samples[len(samples)-window:]
	}
	return samples
}

func median(samples []time.Duration) (time.Duration, bool) {
	if len(samples) == 0 {
		return 0, false
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2, true
	}
	return sorted[mid], true
}

func mean(samples []time.Duration) (time.Duration, bool) {
	if len(samples) == 0 {
		return 0, false
	}
	var sum time.Duration
	for _, d := range samples {
		sum += d
	}
	return sum / time.Duration(len(samples)), true
}
