package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/radarcache/radarcache/internal/radar"
)

// Step names, also the values accepted by the disabled-steps configuration.
const (
	StepLoadHomepage     = "load_homepage"
	StepOpenSearch       = "open_search"
	StepEnterSearch      = "enter_search"
	StepSelectResult     = "select_result"
	StepOpenRadar        = "open_radar"
	StepWaitMap          = "wait_map"
	StepPauseSlideshow   = "pause_slideshow"
	StepSelectFirstFrame = "select_first_frame"
	StepCaptureFrames    = "capture_frames"
	StepCollectObs       = "collect_observation"
)

// baseStep carries the declarative part shared by every step: its name,
// prerequisites, phase, and the minimum page state it may run in.
type baseStep struct {
	name     string
	prereqs  []string
	phase    radar.Phase
	minState PageState
}

func (b baseStep) Name() string                   { return b.name }
func (b baseStep) Prereqs() []string              { return b.prereqs }
func (b baseStep) Phase() radar.Phase             { return b.phase }
func (b baseStep) CanExecute(rc *RunContext) bool { return rc.State.AtLeast(b.minState) }

// DefaultSteps returns the acquisition step list in its fixed execution
// order. The list is declared statically so the order is evident in code.
func DefaultSteps() []Step {
	return []Step{
		&loadHomepageStep{baseStep{StepLoadHomepage, nil, radar.PhaseInitializing, StateInitial}},
		&openSearchStep{baseStep{StepOpenSearch, []string{StepLoadHomepage}, radar.PhaseInitializing, StateHomepageLoaded}},
		&enterSearchStep{baseStep{StepEnterSearch, []string{StepOpenSearch}, radar.PhaseInitializing, StateSearchModalOpen}},
		&selectResultStep{baseStep{StepSelectResult, []string{StepEnterSearch}, radar.PhaseInitializing, StateSearchResultsVisible}},
		&openRadarStep{baseStep{StepOpenRadar, []string{StepSelectResult}, radar.PhaseInitializing, StateForecastPageLoaded}},
		&waitMapStep{baseStep{StepWaitMap, []string{StepOpenRadar}, radar.PhaseInitializing, StateRadarPageLoaded}},
		&pauseSlideshowStep{baseStep{StepPauseSlideshow, []string{StepWaitMap}, radar.PhaseInitializing, StateMapReady}},
		&selectFirstFrameStep{baseStep{StepSelectFirstFrame, []string{StepPauseSlideshow}, radar.PhaseInitializing, StateSlideshowPaused}},
		&captureFramesStep{baseStep{StepCaptureFrames, []string{StepSelectFirstFrame}, radar.PhaseCapturingFrames, StateFrame0Selected}},
		&collectObservationStep{baseStep{StepCollectObs, []string{StepCaptureFrames}, radar.PhaseSaving, StateFrame0Selected}},
	}
}

type loadHomepageStep struct{ baseStep }

func (s *loadHomepageStep) Run(ctx context.Context, rc *RunContext) error {
	if err := rc.Driver.LoadHomepage(ctx); err != nil {
		return err
	}
	rc.State = StateHomepageLoaded
	return nil
}

type openSearchStep struct{ baseStep }

func (s *openSearchStep) Run(ctx context.Context, rc *RunContext) error {
	if err := rc.Driver.OpenSearch(ctx); err != nil {
		return err
	}
	rc.State = StateSearchModalOpen
	return nil
}

type enterSearchStep struct{ baseStep }

func (s *enterSearchStep) Run(ctx context.Context, rc *RunContext) error {
	query := fmt.Sprintf("%s, %s", rc.Location.Suburb, rc.Location.State)
	if err := rc.Driver.SearchLocation(ctx, query); err != nil {
		return err
	}
	rc.State = StateSearchResultsVisible
	return nil
}

type selectResultStep struct{ baseStep }

func (s *selectResultStep) Run(ctx context.Context, rc *RunContext) error {
	if err := rc.Driver.SelectFirstResult(ctx); err != nil {
		return err
	}
	rc.State = StateForecastPageLoaded
	return nil
}

type openRadarStep struct{ baseStep }

func (s *openRadarStep) Run(ctx context.Context, rc *RunContext) error {
	if err := rc.Driver.OpenRadar(ctx); err != nil {
		return err
	}
	rc.State = StateRadarPageLoaded
	return nil
}

type waitMapStep struct{ baseStep }

func (s *waitMapStep) Run(ctx context.Context, rc *RunContext) error {
	if err := rc.Driver.WaitMapReady(ctx); err != nil {
		return err
	}
	rc.State = StateMapReady
	return nil
}

type pauseSlideshowStep struct{ baseStep }

func (s *pauseSlideshowStep) Run(ctx context.Context, rc *RunContext) error {
	if err := rc.Driver.PauseSlideshow(ctx); err != nil {
		return err
	}
	rc.State = StateSlideshowPaused
	return nil
}

type selectFirstFrameStep struct{ baseStep }

func (s *selectFirstFrameStep) Run(ctx context.Context, rc *RunContext) error {
	if err := rc.Driver.SelectFrame(ctx, 0); err != nil {
		return err
	}
	rc.State = StateFrame0Selected
	return nil
}

// captureFramesStep walks the slideshow frame by frame, writing each image
// into the cache folder and reporting (current, total) after every frame.
type captureFramesStep struct{ baseStep }

func (s *captureFramesStep) Run(ctx context.Context, rc *RunContext) error {
	rc.Captured = make([]radar.Frame, 0, rc.FrameCount)
	for i := 0; i < rc.FrameCount; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			if err := rc.Driver.SelectFrame(ctx, i); err != nil {
				return fmt.Errorf("select frame %d: %w", i, err)
			}
		}
		cf, err := rc.Driver.CaptureFrame(ctx, i)
		if err != nil {
			return fmt.Errorf("capture frame %d: %w", i, err)
		}
		path, err := rc.Frames.WriteFrame(rc.Folder, i, cf.Image)
		if err != nil {
			return err
		}
		if rc.DebugDir != "" {
			name := filepath.Join(rc.DebugDir, fmt.Sprintf("frame_%d.png", i))
			if err := os.WriteFile(name, cf.Image, 0o644); err != nil {
				return fmt.Errorf("write debug frame %d: %w", i, err)
			}
		}
		rc.Captured = append(rc.Captured, radar.Frame{
			Index:      i,
			ImagePath:  path,
			MinutesAgo: cf.MinutesAgo,
		})
		rc.Reporter.FrameCaptured(i, rc.FrameCount)
	}
	return nil
}

type collectObservationStep struct{ baseStep }

func (s *collectObservationStep) Run(ctx context.Context, rc *RunContext) error {
	meta, err := rc.Driver.ReadObservation(ctx)
	if err != nil {
		return err
	}
	meta.ObservationTime = meta.ObservationTime.UTC()
	meta.ForecastTime = meta.ForecastTime.UTC()
	rc.Metadata = meta
	return nil
}
