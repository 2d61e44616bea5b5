package workflow

import (
	"context"

	"github.com/radarcache/radarcache/internal/radar"
)

// CapturedFrame is one radar frame as returned by the browser session.
type CapturedFrame struct {
	Image      []byte
	MinutesAgo int
}

// Driver abstracts the remote browser session the acquisition steps run
// against. Concrete element lookup, navigation and screenshot mechanics live
// behind this interface; the engine only sequences the page-level operations.
type Driver interface {
	// Warmup readies the underlying browser resource ahead of a run.
	Warmup(ctx context.Context) error

	LoadHomepage(ctx context.Context) error
	OpenSearch(ctx context.Context) error
	SearchLocation(ctx context.Context, query string) error
	SelectFirstResult(ctx context.Context) error
	OpenRadar(ctx context.Context) error
	WaitMapReady(ctx context.Context) error
	PauseSlideshow(ctx context.Context) error
	SelectFrame(ctx context.Context, index int) error
	CaptureFrame(ctx context.Context, index int) (CapturedFrame, error)
	ReadObservation(ctx context.Context) (radar.ObservationMetadata, error)
}

// FrameWriter persists captured frame images at the paths the cache layer
// expects. Satisfied by *store.FileStore.
type FrameWriter interface {
	WriteFrame(folder string, index int, data []byte) (string, error)
}

// Reporter receives live progress from a run: phase transitions and per-frame
// counters during capture. The cache layer uses these for mid-run ETAs.
type Reporter interface {
	PhaseChanged(phase radar.Phase)
	FrameCaptured(current, total int)
}

// NopReporter discards all progress events.
type NopReporter struct{}

func (NopReporter) PhaseChanged(radar.Phase) {}

func (NopReporter) FrameCaptured(int, int) {}
