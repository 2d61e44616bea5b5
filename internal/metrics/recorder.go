package metrics

import (
	"time"

	"github.com/radarcache/radarcache/internal/radar"
)

type stepSample struct {
	name string
	d    time.Duration
}

type phaseSample struct {
	phase radar.Phase
	d     time.Duration
}

// RunRecorder buffers one acquisition run's timing samples. The samples reach
// the shared Estimator only when the orchestrator commits a successful run, so
// a failed run's partial timings are discarded rather than recorded as genuine
// durations.
//
// A RunRecorder belongs to a single run and is not safe for concurrent use.
type RunRecorder struct {
	start time.Time
	steps []stepSample

	phases     []phaseSample
	phaseStart time.Time

	total time.Duration
}

// NewRunRecorder starts timing a run at the given instant.
func NewRunRecorder(start time.Time) *RunRecorder {
	return &RunRecorder{start: start, phaseStart: start}
}

// StepDone records a completed step duration.
func (r *RunRecorder) StepDone(name string, d time.Duration) {
	r.steps = append(r.steps, stepSample{name: name, d: d})
}

// PhaseDone closes out the current phase at now and records its duration.
func (r *RunRecorder) PhaseDone(phase radar.Phase, now time.Time) {
	r.phases = append(r.phases, phaseSample{phase: phase, d: now.Sub(r.phaseStart)})
	r.phaseStart = now
}

// Finish closes the run at now and returns the total duration.
func (r *RunRecorder) Finish(now time.Time) time.Duration {
	r.total = now.Sub(r.start)
	return r.total
}
