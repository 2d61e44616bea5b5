package radar

import (
	"fmt"
	"strings"
	"time"
)

// Location identifies a place for which radar imagery is cached.
// Suburb/State must be provided.
type Location struct {
	Suburb string `json:"suburb"`
	State  string `json:"state"`
}

// Key returns the canonical filesystem-safe key used for indexing and locking.
// Lowercased, spaces collapsed to "-", anything outside [a-z0-9-] stripped,
// joined as "suburb_state" so the state is always the last underscore segment.
func (l Location) Key() string {
	return sanitize(l.Suburb) + "_" + sanitize(l.State)
}

func sanitize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
	}
	return b.String()
}

// ParseLocationKey reconstructs a Location from a key produced by Key().
// The suburb part is lossy (original casing and spacing are gone) but the
// result round-trips: ParseLocationKey(k).Key() == k.
func ParseLocationKey(key string) (Location, error) {
	i := strings.LastIndex(key, "_")
	if i <= 0 || i == len(key)-1 {
		return Location{}, fmt.Errorf("invalid location key %q", key)
	}
	return Location{Suburb: key[:i], State: key[i+1:]}, nil
}

// ObservationMetadata describes a single acquisition's radar observation.
// All timestamps are UTC.
type ObservationMetadata struct {
	ObservationTime time.Time `json:"observationTime"`
	ForecastTime    time.Time `json:"forecastTime"`
	WeatherStation  string    `json:"weatherStation"`
	Distance        float64   `json:"distance"`
}

// IsFresh reports whether the observation is still within the validity window.
// Staleness is computed against ObservationTime, not folder creation time: the
// remote source publishes on a fixed cadence independent of when we fetched.
func (m ObservationMetadata) IsFresh(now time.Time, validity time.Duration) bool {
	return now.UTC().Before(m.ObservationTime.Add(validity))
}

// Frame is a single radar image within a cache folder.
// Index is 0-based, ordered oldest to newest.
type Frame struct {
	Index      int    `json:"frameIndex"`
	ImagePath  string `json:"-"`
	MinutesAgo int    `json:"minutesAgo"`
}

// Phase is a coarse stage of an acquisition run, used for progress estimation.
type Phase string

const (
	PhaseInitializing    Phase = "initializing"
	PhaseCapturingFrames Phase = "capturing_frames"
	PhaseSaving          Phase = "saving"
)

const folderTimeLayout = "20060102_150405"

// FolderName formats a cache folder name as {key}_{yyyyMMdd_HHmmss}.
// The timestamp is rendered in t's own location; callers pick the zone.
func FolderName(key string, t time.Time) string {
	return key + "_" + t.Format(folderTimeLayout)
}

// ParseFolderName splits a folder name into its location key and embedded
// timestamp, interpreted in tz. The timestamp is always the trailing two
// underscore segments; everything before them is the key.
func ParseFolderName(name string, tz *time.Location) (key string, ts time.Time, err error) {
	parts := strings.Split(name, "_")
	if len(parts) < 3 {
		return "", time.Time{}, fmt.Errorf("folder name %q has no embedded timestamp", name)
	}
	stamp := parts[len(parts)-2] + "_" + parts[len(parts)-1]
	ts, err = time.ParseInLocation(folderTimeLayout, stamp, tz)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("folder name %q: %w", name, err)
	}
	return strings.Join(parts[:len(parts)-2], "_"), ts, nil
}
