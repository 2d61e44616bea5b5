package radar

import (
	"testing"
	"time"
)

func TestLocationKeyNormalization(t *testing.T) {
	cases := []struct {
		loc  Location
		want string
	}{
		{Location{Suburb: "Box Hill", State: "VIC"}, "box-hill_vic"},
		{Location{Suburb: "  Surfers Paradise ", State: "qld"}, "surfers-paradise_qld"},
		{Location{Suburb: "O'Connor", State: "ACT"}, "oconnor_act"},
	}
	for _, c := range cases {
		if got := c.loc.Key(); got != c.want {
			t.Errorf("Key(%+v) = %q, want %q", c.loc, got, c.want)
		}
	}
}

func TestParseLocationKeyRoundTrip(t *testing.T) {
	for _, key := range []string{"box-hill_vic", "sydney_nsw", "alice-springs_nt"} {
		loc, err := ParseLocationKey(key)
		if err != nil {
			t.Fatalf("ParseLocationKey(%q): %v", key, err)
		}
		if loc.Key() != key {
			t.Errorf("round trip %q -> %q", key, loc.Key())
		}
	}

	if _, err := ParseLocationKey("nounderscore"); err == nil {
		t.Error("expected error for key without separator")
	}
}

func TestFolderNameRoundTrip(t *testing.T) {
	tz, err := time.LoadLocation("Australia/Sydney")
	if err != nil {
		t.Fatal(err)
	}
	ts := time.Date(2026, 3, 14, 9, 30, 15, 0, tz)

	name := FolderName("box-hill_vic", ts)
	if name != "box-hill_vic_20260314_093015" {
		t.Fatalf("unexpected folder name %q", name)
	}

	key, parsed, err := ParseFolderName(name, tz)
	if err != nil {
		t.Fatal(err)
	}
	if key != "box-hill_vic" {
		t.Errorf("parsed key %q", key)
	}
	if !parsed.Equal(ts) {
		t.Errorf("parsed time %v, want %v", parsed, ts)
	}

	if _, _, err := ParseFolderName("garbage", tz); err == nil {
		t.Error("expected error for unparseable name")
	}
}

// Freshness is a pure function of now and ObservationTime and flips exactly
// once as now advances past ObservationTime + validity.
func TestObservationFreshness(t *testing.T) {
	obs := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	meta := ObservationMetadata{ObservationTime: obs}
	validity := 15 * time.Minute

	if !meta.IsFresh(obs.Add(14*time.Minute), validity) {
		t.Error("expected fresh at T+14m with 15m validity")
	}
	if meta.IsFresh(obs.Add(16*time.Minute), validity) {
		t.Error("expected stale at T+16m with 15m validity")
	}
}

func TestActiveRegistrySingleFlight(t *testing.T) {
	r := NewActiveRegistry()
	now := time.Now()

	if !r.Begin("sydney_nsw", "/cache/sydney_nsw_20260110_120000", now) {
		t.Fatal("first Begin should succeed")
	}
	if r.Begin("sydney_nsw", "/cache/other", now) {
		t.Fatal("second Begin for same key should fail")
	}
	if !r.Begin("perth_wa", "/cache/perth", now) {
		t.Fatal("Begin for a different key should succeed")
	}

	r.SetPhase("sydney_nsw", PhaseCapturingFrames)
	r.SetFrameProgress("sydney_nsw", 2, 6)
	p, ok := r.Get("sydney_nsw")
	if !ok || p.Phase != PhaseCapturingFrames || p.CurrentFrame != 2 || p.TotalFrames != 6 {
		t.Fatalf("unexpected progress %+v ok=%v", p, ok)
	}

	r.Finish("sydney_nsw")
	if _, ok := r.Get("sydney_nsw"); ok {
		t.Error("expected no progress after Finish")
	}
	if !r.Begin("sydney_nsw", "/cache/next", now) {
		t.Error("Begin should succeed again after Finish")
	}
}
