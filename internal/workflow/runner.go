package workflow

import (
	"context"

	"github.com/radarcache/radarcache/internal/metrics"
	"github.com/radarcache/radarcache/internal/radar"
)

// Runner binds an Engine to its collaborators and exposes the single-call
// acquisition entry point the cache layer consumes.
type Runner struct {
	engine     *Engine
	driver     Driver
	frames     FrameWriter
	frameCount int
}

func NewRunner(engine *Engine, driver Driver, frames FrameWriter, frameCount int) *Runner {
	return &Runner{
		engine:     engine,
		driver:     driver,
		frames:     frames,
		frameCount: frameCount,
	}
}

// Run executes the full acquisition workflow once for a location, writing
// frame images into folder. Invoked exactly once per triggered update.
func (r *Runner) Run(
	ctx context.Context,
	loc radar.Location,
	folder, requestID, debugDir string,
	reporter Reporter,
	rec *metrics.RunRecorder,
) ([]radar.Frame, radar.ObservationMetadata, error) {
	rc := &RunContext{
		Location:   loc,
		Folder:     folder,
		FrameCount: r.frameCount,
		RequestID:  requestID,
		DebugDir:   debugDir,
		Driver:     r.driver,
		Frames:     r.frames,
		Reporter:   reporter,
		State:      StateInitial,
	}
	return r.engine.Run(ctx, rc, rec)
}
