package cache

import (
	"log"
	"sort"
	"time"

	"github.com/radarcache/radarcache/internal/radar"
)

// minFrameSpacing is the minimum gap between consecutive frames in an
// assembled series; anything closer is a near-duplicate of the previous frame.
const minFrameSpacing = 4 * time.Minute

// SourceFolder is one complete cache folder feeding the series assembler.
type SourceFolder struct {
	Name            string
	ObservationTime time.Time
	Frames          []radar.Frame
}

// SeriesFrame is one frame of an assembled series with its absolute
// observation time resolved.
type SeriesFrame struct {
	Index      int       `json:"frameIndex"`
	ImagePath  string    `json:"-"`
	ObservedAt time.Time `json:"observedAt"`
}

// SeriesFolder groups an assembled series' frames by the folder they came
// from, ordered so the whole result can be flattened folder-by-folder without
// re-sorting.
type SeriesFolder struct {
	Name            string        `json:"folder"`
	ObservationTime time.Time     `json:"observationTime"`
	Frames          []SeriesFrame `json:"frames"`
}

// AssembleSeries merges frames across cache generations into one
// deduplicated, strictly chronological, minimum-spaced sequence.
//
// Newer folders win overlaps: a frame's absolute time seen in a strictly
// newer folder suppresses the older folder's copy.
func AssembleSeries(folders []SourceFolder) []SeriesFolder {
	// Folders with a sentinel observation time carry no usable clock; skip
	// them rather than poisoning the sequence.
	usable := folders[:0:0]
	for _, f := range folders {
		if f.ObservationTime.IsZero() || f.ObservationTime.Unix() <= 0 {
			log.Printf("series: skipping folder %s with implausible observation time %v", f.Name, f.ObservationTime)
			continue
		}
		usable = append(usable, f)
	}

	// Newest first, so overlap resolution keeps the newer folder's copy.
	sort.Slice(usable, func(i, j int) bool {
		return usable[i].ObservationTime.After(usable[j].ObservationTime)
	})

	type taggedFrame struct {
		folder int // index into usable
		frame  SeriesFrame
	}

	seen := make(map[int64]bool)
	var kept []taggedFrame
	for fi, f := range usable {
		for _, fr := range f.Frames {
			abs := f.ObservationTime.Add(-time.Duration(fr.MinutesAgo) * time.Minute).UTC()
			if seen[abs.Unix()] {
				continue
			}
			seen[abs.Unix()] = true
			kept = append(kept, taggedFrame{
				folder: fi,
				frame:  SeriesFrame{Index: fr.Index, ImagePath: fr.ImagePath, ObservedAt: abs},
			})
		}
	}

	sort.Slice(kept, func(i, j int) bool {
		return kept[i].frame.ObservedAt.Before(kept[j].frame.ObservedAt)
	})

	// Monotonic minimum-spacing filter over the globally sorted frames.
	var accepted []taggedFrame
	var last time.Time
	for _, tf := range kept {
		if !last.IsZero() {
			if tf.frame.ObservedAt.Before(last) {
				// Cannot occur after sorting, but guard the invariant anyway.
				continue
			}
			if tf.frame.ObservedAt.Sub(last) < minFrameSpacing {
				continue
			}
		}
		accepted = append(accepted, tf)
		last = tf.frame.ObservedAt
	}

	// Re-partition accepted frames back into their folders.
	byFolder := make(map[int][]SeriesFrame)
	for _, tf := range accepted {
		byFolder[tf.folder] = append(byFolder[tf.folder], tf.frame)
	}

	out := make([]SeriesFolder, 0, len(byFolder))
	for fi, frames := range byFolder {
		sort.Slice(frames, func(i, j int) bool {
			return frames[i].ObservedAt.Before(frames[j].ObservedAt)
		})
		out = append(out, SeriesFolder{
			Name:            usable[fi].Name,
			ObservationTime: usable[fi].ObservationTime,
			Frames:          frames,
		})
	}
	// Folders ordered by their earliest remaining frame.
	sort.Slice(out, func(i, j int) bool {
		return out[i].Frames[0].ObservedAt.Before(out[j].Frames[0].ObservedAt)
	})

	// Final invariant: each folder's last frame strictly precedes the next
	// folder's first frame. A violation means inconsistent upstream data; the
	// result is still returned as computed.
	for i := 1; i < len(out); i++ {
		prev := out[i-1].Frames[len(out[i-1].Frames)-1].ObservedAt
		next := out[i].Frames[0].ObservedAt
		if !prev.Before(next) {
			log.Printf("series: chronology violation between %s and %s (%v >= %v)",
				out[i-1].Name, out[i].Name, prev, next)
		}
	}

	return out
}
