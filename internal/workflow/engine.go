package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/radarcache/radarcache/internal/metrics"
	"github.com/radarcache/radarcache/internal/radar"
)

// ErrConfiguration marks a violated step prerequisite or execution gate.
// These are wiring mistakes, not transient failures; retrying cannot fix them.
var ErrConfiguration = errors.New("workflow configuration error")

// Step is one unit of the acquisition workflow. Steps run in the order they
// are declared; Prereqs and CanExecute are verified before each run and a
// violation aborts the workflow as a configuration error.
type Step interface {
	Name() string
	Prereqs() []string
	Phase() radar.Phase
	CanExecute(rc *RunContext) bool
	Run(ctx context.Context, rc *RunContext) error
}

// RunContext is the shared mutable state one acquisition run threads through
// its steps.
type RunContext struct {
	Location   radar.Location
	Folder     string
	FrameCount int
	RequestID  string

	// DebugDir is non-empty only when debug mode is on; steps drop raw
	// artifacts there.
	DebugDir string

	Driver   Driver
	Frames   FrameWriter
	Reporter Reporter

	State    PageState
	Captured []radar.Frame
	Metadata radar.ObservationMetadata

	completed map[string]bool
}

// Engine executes a fixed, statically-declared list of steps against a shared
// run context, timing each step and reporting phase transitions.
type Engine struct {
	steps    []Step
	disabled map[string]bool
}

// NewEngine builds an engine over the given step list. Steps named in
// disabled are skipped at run time but still count as completed for the
// prerequisite bookkeeping of later steps.
func NewEngine(steps []Step, disabled []string) *Engine {
	d := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		d[name] = true
	}
	return &Engine{steps: steps, disabled: d}
}

// Run executes every step in declared order. It returns the captured frames
// and observation metadata on success. Any step failure aborts the run
// immediately; retry policy belongs to the caller.
func (e *Engine) Run(ctx context.Context, rc *RunContext, rec *metrics.RunRecorder) ([]radar.Frame, radar.ObservationMetadata, error) {
	rc.completed = make(map[string]bool, len(e.steps))
	phase := radar.PhaseInitializing

	for _, step := range e.steps {
		name := step.Name()

		if e.disabled[name] {
			// Skip = logically complete, so downstream prereqs still hold.
			rc.completed[name] = true
			log.Printf("workflow %s: step %s disabled, skipping", rc.RequestID, name)
			continue
		}

		for _, pre := range step.Prereqs() {
			if !rc.completed[pre] {
				return nil, radar.ObservationMetadata{}, fmt.Errorf(
					"%w: step %s requires %s which has not completed", ErrConfiguration, name, pre)
			}
		}
		if !step.CanExecute(rc) {
			return nil, radar.ObservationMetadata{}, fmt.Errorf(
				"%w: step %s cannot execute in page state %s", ErrConfiguration, name, rc.State)
		}

		if next := step.Phase(); next != phase {
			rec.PhaseDone(phase, time.Now())
			phase = next
			rc.Reporter.PhaseChanged(next)
		}

		started := time.Now()
		if err := step.Run(ctx, rc); err != nil {
			return nil, radar.ObservationMetadata{}, fmt.Errorf("step %s failed: %w", name, err)
		}
		rec.StepDone(name, time.Since(started))
		rc.completed[name] = true
	}

	rec.PhaseDone(phase, time.Now())
	return rc.Captured, rc.Metadata, nil
}
