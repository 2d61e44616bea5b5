package metrics

import (
	"testing"
	"time"

	"github.com/radarcache/radarcache/internal/radar"
)

func TestStaticEstimateDeterministic(t *testing.T) {
	got := StaticEstimate(10*time.Second, 3*time.Second, 2*time.Second, 6)
	want := 10*time.Second + 6*(3*time.Second+2*time.Second)
	if got != want {
		t.Errorf("StaticEstimate = %v, want %v", got, want)
	}
	if got <= 0 {
		t.Error("static estimate must be positive")
	}
}

func TestEstimateUnavailableWithoutHistory(t *testing.T) {
	e := NewEstimator(20)
	p := radar.UpdateProgress{
		StartedAt: time.Now(),
		Phase:     radar.PhaseInitializing,
	}
	if _, ok := e.EstimateRemaining(p, time.Now(), 6); ok {
		t.Error("expected no estimate without any total-duration history")
	}
}

// The total aggregate uses the median so an occasional slow run does not skew
// the projection.
func TestInitializingUsesMedianTotal(t *testing.T) {
	e := NewEstimator(20)
	for _, d := range []time.Duration{60 * time.Second, 62 * time.Second, 61 * time.Second, 600 * time.Second} {
		e.RecordTotal(d)
	}

	start := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	now := start.Add(10 * time.Second)
	p := radar.UpdateProgress{StartedAt: start, Phase: radar.PhaseInitializing}

	got, ok := e.EstimateRemaining(p, now, 6)
	if !ok {
		t.Fatal("expected an estimate")
	}
	// median of {60,61,62,600}s = 61.5s; *1.1 = 67.65s; minus 10s elapsed.
	median := 61500 * time.Millisecond
	want := time.Duration(float64(median)*1.1) - 10*time.Second
	if got != want {
		t.Errorf("estimate = %v, want %v", got, want)
	}
}

func TestInitializingEstimateFlooredAtZero(t *testing.T) {
	e := NewEstimator(20)
	e.RecordTotal(10 * time.Second)

	start := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	p := radar.UpdateProgress{StartedAt: start, Phase: radar.PhaseInitializing}

	got, ok := e.EstimateRemaining(p, start.Add(5*time.Minute), 6)
	if !ok || got != 0 {
		t.Errorf("expected floor at 0, got %v ok=%v", got, ok)
	}
}

func TestCapturingFramesUsesPerFrameAverage(t *testing.T) {
	e := NewEstimator(20)
	// 30s capturing 6 frames -> 5s per frame.
	e.RecordPhase(radar.PhaseCapturingFrames, 30*time.Second)
	e.RecordPhase(radar.PhaseSaving, 4*time.Second)

	p := radar.UpdateProgress{
		StartedAt:    time.Now(),
		Phase:        radar.PhaseCapturingFrames,
		CurrentFrame: 2,
		TotalFrames:  6,
	}
	got, ok := e.EstimateRemaining(p, time.Now(), 6)
	if !ok {
		t.Fatal("expected an estimate")
	}
	// 3 frames remain after the current one: 3*5s + 4s saving.
	want := 3*5*time.Second + 4*time.Second
	if got != want {
		t.Errorf("estimate = %v, want %v", got, want)
	}
}

func TestCapturingFramesFallsBackToProgressFraction(t *testing.T) {
	e := NewEstimator(20)
	e.RecordTotal(60 * time.Second)

	start := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	now := start.Add(20 * time.Second)
	p := radar.UpdateProgress{
		StartedAt:    start,
		Phase:        radar.PhaseCapturingFrames,
		CurrentFrame: 2,
		TotalFrames:  6,
	}
	got, ok := e.EstimateRemaining(p, now, 6)
	if !ok {
		t.Fatal("expected an estimate")
	}
	// progress = 3/6; 60s / 0.5 - 20s elapsed = 100s.
	want := 100 * time.Second
	if got != want {
		t.Errorf("estimate = %v, want %v", got, want)
	}
}

func TestSavingPhaseEstimate(t *testing.T) {
	e := NewEstimator(20)
	p := radar.UpdateProgress{StartedAt: time.Now(), Phase: radar.PhaseSaving}

	got, ok := e.EstimateRemaining(p, time.Now(), 6)
	if !ok || got != savingFloor {
		t.Errorf("expected saving floor %v, got %v ok=%v", savingFloor, got, ok)
	}

	e.RecordPhase(radar.PhaseSaving, 7*time.Second)
	e.RecordPhase(radar.PhaseSaving, 9*time.Second)
	got, ok = e.EstimateRemaining(p, time.Now(), 6)
	if !ok || got != 8*time.Second {
		t.Errorf("expected mean saving duration 8s, got %v ok=%v", got, ok)
	}
}

func TestWindowEviction(t *testing.T) {
	e := NewEstimator(3)
	for i := 1; i <= 5; i++ {
		e.RecordTotal(time.Duration(i) * time.Second)
	}
	// Window keeps {3,4,5}s; median is 4s.
	p := radar.UpdateProgress{StartedAt: time.Now(), Phase: radar.PhaseInitializing}
	got, ok := e.EstimateRemaining(p, p.StartedAt, 6)
	if !ok {
		t.Fatal("expected an estimate")
	}
	median := 4 * time.Second
	want := time.Duration(float64(median) * 1.1)
	if got != want {
		t.Errorf("estimate = %v, want %v", got, want)
	}
}

func TestRunRecorderCommit(t *testing.T) {
	e := NewEstimator(20)
	start := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	rec := NewRunRecorder(start)
	rec.StepDone("load_homepage", 2*time.Second)
	rec.PhaseDone(radar.PhaseInitializing, start.Add(10*time.Second))
	rec.PhaseDone(radar.PhaseCapturingFrames, start.Add(40*time.Second))
	rec.PhaseDone(radar.PhaseSaving, start.Add(45*time.Second))
	total := rec.Finish(start.Add(45 * time.Second))
	if total != 45*time.Second {
		t.Fatalf("total = %v", total)
	}

	e.Commit(rec)

	p := radar.UpdateProgress{StartedAt: start, Phase: radar.PhaseSaving}
	got, ok := e.EstimateRemaining(p, start, 6)
	if !ok || got != 5*time.Second {
		t.Errorf("saving estimate after commit = %v ok=%v, want 5s", got, ok)
	}
}
