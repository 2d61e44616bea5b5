package cache

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/radarcache/radarcache/internal/metrics"
	"github.com/radarcache/radarcache/internal/radar"
	"github.com/radarcache/radarcache/internal/store"
	"github.com/radarcache/radarcache/internal/workflow"
)

// AcquisitionRunner runs one full acquisition workflow for a location,
// writing frame images into folder. Satisfied by *workflow.Runner.
type AcquisitionRunner interface {
	Run(ctx context.Context, loc radar.Location, folder, requestID, debugDir string,
		reporter workflow.Reporter, rec *metrics.RunRecorder) ([]radar.Frame, radar.ObservationMetadata, error)
}

// Config carries the orchestrator's externally-required settings. Validation
// happens at startup in the config package; by the time a Config reaches New
// every field is populated.
type Config struct {
	// Validity is the cache-validity window measured from ObservationTime.
	Validity   time.Duration
	FrameCount int

	// Concurrency bounds in-flight acquisitions across all locations.
	Concurrency int

	// Timezone renders folder timestamps; existing caches embed local time.
	Timezone *time.Location

	// Static ETA fallback parameters, used when no metrics history exists.
	BaseOverhead     time.Duration
	TileRenderWait   time.Duration
	PerFrameOverhead time.Duration

	Debug bool
}

// UpdateStatus is the structured answer every trigger caller gets; expected
// staleness and race conditions are reflected here, never as errors.
type UpdateStatus struct {
	Triggered  bool      `json:"updateTriggered"`
	CacheValid bool      `json:"cacheIsValid"`
	Message    string    `json:"message"`
	ETA        time.Time `json:"eta"`
}

// FolderSummary describes one complete cache folder for range queries.
type FolderSummary struct {
	Name            string    `json:"folder"`
	Timestamp       time.Time `json:"timestamp"`
	ObservationTime time.Time `json:"observationTime"`
	FrameCount      int       `json:"frameCount"`
	HasMetadata     bool      `json:"hasMetadata"`
}

// CacheRange summarizes a location's cache history.
type CacheRange struct {
	Folders int       `json:"folders"`
	Oldest  time.Time `json:"oldest"`
	Newest  time.Time `json:"newest"`
}

// Orchestrator owns the per-location single-flight coordination, freshness
// decisions, and the lifecycle of cache folders around acquisition runs.
type Orchestrator struct {
	store     *store.FileStore
	active    *radar.ActiveRegistry
	estimator *metrics.Estimator
	runner    AcquisitionRunner
	cfg       Config

	// permits is the global acquisition capacity limit, independent of the
	// per-location single-flight lock.
	permits chan struct{}

	now func() time.Time
	wg  sync.WaitGroup
}

func New(fs *store.FileStore, active *radar.ActiveRegistry, estimator *metrics.Estimator, runner AcquisitionRunner, cfg Config) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Orchestrator{
		store:     fs,
		active:    active,
		estimator: estimator,
		runner:    runner,
		cfg:       cfg,
		permits:   make(chan struct{}, cfg.Concurrency),
		now:       time.Now,
	}
}

// GetFresh returns the newest complete, non-active cache folder for the
// location together with its parsed metadata. It never touches the network.
// Returns store.ErrNotFound when nothing servable exists.
func (o *Orchestrator) GetFresh(loc radar.Location) (store.FolderInfo, radar.ObservationMetadata, error) {
	key := loc.Key()
	folders, err := o.store.ListFolders(key)
	if err != nil {
		return store.FolderInfo{}, radar.ObservationMetadata{}, err
	}
	activeFolder := o.active.ActiveFolder(key)
	for _, f := range folders {
		// The active folder may look complete while writes are still
		// mutating it; never serve it.
		if f.Path == activeFolder {
			continue
		}
		if !o.store.IsComplete(f.Path) {
			continue
		}
		meta, err := o.store.ReadMetadata(f.Path)
		if err != nil {
			log.Printf("cache: unreadable metadata in %s: %v", f.Name, err)
			continue
		}
		return f, meta, nil
	}
	return store.FolderInfo{}, radar.ObservationMetadata{}, store.ErrNotFound
}

// Wait blocks until all in-flight acquisitions finish. Used during shutdown.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// GetCurrentFrames returns the newest servable folder together with its
// metadata and frame manifest.
func (o *Orchestrator) GetCurrentFrames(loc radar.Location) (store.FolderInfo, radar.ObservationMetadata, []radar.Frame, error) {
	f, meta, err := o.GetFresh(loc)
	if err != nil {
		return store.FolderInfo{}, radar.ObservationMetadata{}, nil, err
	}
	frames, err := o.store.ReadManifest(f.Path)
	if err != nil {
		return store.FolderInfo{}, radar.ObservationMetadata{}, nil, err
	}
	return f, meta, frames, nil
}

// TriggerUpdate decides whether the location needs a refresh and, when it
// does, launches the acquisition asynchronously. It never blocks on the
// acquisition permit: cache hits and in-flight answers return immediately.
func (o *Orchestrator) TriggerUpdate(loc radar.Location) UpdateStatus {
	key := loc.Key()
	now := o.now()

	if p, ok := o.active.Get(key); ok {
		return UpdateStatus{Message: "update already in progress", ETA: o.etaForProgress(p, now)}
	}

	if _, meta, err := o.GetFresh(loc); err == nil && meta.IsFresh(now, o.cfg.Validity) {
		return UpdateStatus{
			CacheValid: true,
			Message:    "cache is fresh",
			ETA:        meta.ObservationTime.Add(o.cfg.Validity),
		}
	}

	// Stale or absent: create the folder up front so it exists, even if
	// incomplete, for the duration of the run.
	name := radar.FolderName(key, now.In(o.cfg.Timezone))
	folder, err := o.store.CreateFolder(name)
	if err != nil {
		log.Printf("cache: create folder for %s: %v", key, err)
		return UpdateStatus{Message: "failed to prepare cache folder"}
	}

	if !o.active.Begin(key, folder, now) {
		// Lost the registration race to a concurrent trigger. Same-second
		// triggers share a folder name, so only discard the folder when the
		// winner registered a different one.
		p, ok := o.active.Get(key)
		if !ok || p.Folder != folder {
			o.discardIfEmpty(folder)
		}
		return UpdateStatus{Message: "update already in progress", ETA: o.etaForProgress(p, now)}
	}

	// A concurrent update may have completed between the first freshness
	// check and our registration; yield to its result.
	if _, meta, err := o.GetFresh(loc); err == nil && meta.IsFresh(now, o.cfg.Validity) {
		o.active.Finish(key)
		o.discardIfEmpty(folder)
		return UpdateStatus{
			CacheValid: true,
			Message:    "refreshed by concurrent update",
			ETA:        meta.ObservationTime.Add(o.cfg.Validity),
		}
	}

	o.wg.Add(1)
	go o.runAcquisition(key, loc, folder)

	eta := now.Add(o.staticEstimate())
	if d, ok := o.estimator.EstimateRemaining(radar.UpdateProgress{
		StartedAt: now,
		Phase:     radar.PhaseInitializing,
	}, now, o.cfg.FrameCount); ok {
		eta = now.Add(d)
	}
	return UpdateStatus{Triggered: true, Message: "update triggered", ETA: eta}
}

// runAcquisition executes one update on a background goroutine, detached from
// the triggering request's lifetime so other readers benefit from it
// completing.
func (o *Orchestrator) runAcquisition(key string, loc radar.Location, folder string) {
	defer o.wg.Done()

	ctx := context.Background()

	// The permit bounds concurrent browser sessions; the cache checks that
	// justified this run already happened, so waiting here delays no reader.
	o.permits <- struct{}{}
	defer func() { <-o.permits }()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("cache: acquisition panic for %s: %v", key, r)
		}
		o.active.Finish(key)
		// Never delete a folder that passes the completeness check, even on
		// an error path: the failure happened after useful data was durably
		// written.
		if !o.store.IsComplete(folder) {
			if err := o.store.DeleteFolder(folder); err != nil {
				log.Printf("cache: delete incomplete folder %s: %v", folder, err)
			}
		}
	}()

	requestID := uuid.NewString()
	debugDir := ""
	if o.cfg.Debug {
		d, err := o.store.DebugDir(requestID)
		if err != nil {
			log.Printf("cache: debug dir for %s: %v", requestID, err)
		} else {
			debugDir = d
		}
	}

	rec := metrics.NewRunRecorder(o.now())
	frames, meta, err := o.runner.Run(ctx, loc, folder, requestID, debugDir,
		&progressReporter{active: o.active, key: key}, rec)
	if err != nil {
		// Cache stays as-is; callers keep getting the last good data.
		log.Printf("cache: acquisition failed for %s: %v", key, err)
		return
	}

	if err := o.store.WriteMetadata(folder, meta); err != nil {
		log.Printf("cache: persist metadata for %s: %v", key, err)
		return
	}
	// Manifest last: writing it is what flips the folder to complete.
	if err := o.store.WriteManifest(folder, frames); err != nil {
		log.Printf("cache: persist manifest for %s: %v", key, err)
		return
	}

	total := rec.Finish(o.now())
	o.estimator.Commit(rec)
	log.Printf("cache: update complete for %s in %s (%d frames)", key, total.Round(time.Millisecond), len(frames))
}

func (o *Orchestrator) discardIfEmpty(folder string) {
	if o.store.IsEmpty(folder) {
		if err := o.store.DeleteFolder(folder); err != nil {
			log.Printf("cache: discard folder %s: %v", folder, err)
		}
	}
}

func (o *Orchestrator) etaForProgress(p radar.UpdateProgress, now time.Time) time.Time {
	if d, ok := o.estimator.EstimateRemaining(p, now, o.cfg.FrameCount); ok {
		return now.Add(d)
	}
	rem := o.staticEstimate() - now.Sub(p.StartedAt)
	if rem < 0 {
		rem = 0
	}
	return now.Add(rem)
}

func (o *Orchestrator) staticEstimate() time.Duration {
	return metrics.StaticEstimate(o.cfg.BaseOverhead, o.cfg.TileRenderWait, o.cfg.PerFrameOverhead, o.cfg.FrameCount)
}

// GetAllFolders returns every complete, non-active folder for the location,
// oldest first.
func (o *Orchestrator) GetAllFolders(loc radar.Location) ([]FolderSummary, error) {
	key := loc.Key()
	folders, err := o.store.ListFolders(key)
	if err != nil {
		return nil, err
	}
	activeFolder := o.active.ActiveFolder(key)
	out := make([]FolderSummary, 0, len(folders))
	for i := len(folders) - 1; i >= 0; i-- { // newest-first list, walk backwards
		f := folders[i]
		if f.Path == activeFolder || !o.store.IsComplete(f.Path) {
			continue
		}
		s := FolderSummary{Name: f.Name, Timestamp: f.Timestamp}
		if meta, err := o.store.ReadMetadata(f.Path); err == nil {
			s.ObservationTime = meta.ObservationTime
			s.HasMetadata = true
		}
		if frames, err := o.store.ReadManifest(f.Path); err == nil {
			s.FrameCount = len(frames)
		}
		out = append(out, s)
	}
	return out, nil
}

// GetCacheRange summarizes the location's history; Folders == 0 means the
// location has no history at all.
func (o *Orchestrator) GetCacheRange(loc radar.Location) (CacheRange, error) {
	folders, err := o.GetAllFolders(loc)
	if err != nil {
		return CacheRange{}, err
	}
	r := CacheRange{Folders: len(folders)}
	if len(folders) == 0 {
		return r, nil
	}
	first, last := folders[0], folders[len(folders)-1]
	r.Oldest = first.Timestamp
	if first.HasMetadata {
		r.Oldest = first.ObservationTime
	}
	r.Newest = last.Timestamp
	if last.HasMetadata {
		r.Newest = last.ObservationTime
	}
	return r, nil
}

// GetSeries assembles the deduplicated chronological frame sequence across
// all complete folders, optionally restricted to observation times within
// [start, end].
func (o *Orchestrator) GetSeries(loc radar.Location, start, end *time.Time) ([]SeriesFolder, error) {
	key := loc.Key()
	folders, err := o.store.ListFolders(key)
	if err != nil {
		return nil, err
	}
	activeFolder := o.active.ActiveFolder(key)
	var src []SourceFolder
	for _, f := range folders {
		if f.Path == activeFolder || !o.store.IsComplete(f.Path) {
			continue
		}
		meta, err := o.store.ReadMetadata(f.Path)
		if err != nil {
			log.Printf("cache: series skipping %s: %v", f.Name, err)
			continue
		}
		if start != nil && meta.ObservationTime.Before(*start) {
			continue
		}
		if end != nil && meta.ObservationTime.After(*end) {
			continue
		}
		frames, err := o.store.ReadManifest(f.Path)
		if err != nil {
			log.Printf("cache: series skipping %s: %v", f.Name, err)
			continue
		}
		src = append(src, SourceFolder{
			Name:            f.Name,
			ObservationTime: meta.ObservationTime,
			Frames:          frames,
		})
	}
	return AssembleSeries(src), nil
}

// GetFrame returns the on-disk path of one frame from the newest complete,
// non-active folder.
func (o *Orchestrator) GetFrame(loc radar.Location, index int) (string, error) {
	if index < 0 || index >= o.cfg.FrameCount {
		return "", fmt.Errorf("frame index %d out of range [0,%d)", index, o.cfg.FrameCount)
	}
	f, _, err := o.GetFresh(loc)
	if err != nil {
		return "", err
	}
	return o.store.FramePath(f.Path, index), nil
}

// DeleteLocation removes every non-active cache folder for the location and
// returns how many were deleted. An in-flight folder is left to its own run's
// success or failure path.
func (o *Orchestrator) DeleteLocation(loc radar.Location) (int, error) {
	key := loc.Key()
	folders, err := o.store.ListFolders(key)
	if err != nil {
		return 0, err
	}
	activeFolder := o.active.ActiveFolder(key)
	deleted := 0
	for _, f := range folders {
		if f.Path == activeFolder {
			continue
		}
		if err := o.store.DeleteFolder(f.Path); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// CleanupIncompleteOnStartup removes folders a prior process left partially
// written. Must run before any scheduler or request can start an update.
func (o *Orchestrator) CleanupIncompleteOnStartup() (int, error) {
	return o.store.CleanupIncomplete()
}

// KnownLocations discovers every location with at least one cache folder.
func (o *Orchestrator) KnownLocations() ([]radar.Location, error) {
	all, err := o.store.ListAll()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var locs []radar.Location
	for _, f := range all {
		key, _, err := radar.ParseFolderName(f.Name, o.cfg.Timezone)
		if err != nil || seen[key] {
			continue
		}
		loc, err := radar.ParseLocationKey(key)
		if err != nil {
			continue
		}
		seen[key] = true
		locs = append(locs, loc)
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i].Key() < locs[j].Key() })
	return locs, nil
}

// RemoveExpired deletes cache folders and debug artifacts whose last-write
// time falls outside the retention window.
func (o *Orchestrator) RemoveExpired(retention time.Duration) (folders, debug int, err error) {
	cutoff := o.now().Add(-retention)
	folders, err = o.store.DeleteOlderThan(cutoff)
	if err != nil {
		return folders, 0, err
	}
	debug, err = o.store.PurgeDebug(cutoff)
	return folders, debug, err
}

// progressReporter feeds live run progress into the active-update registry.
type progressReporter struct {
	active *radar.ActiveRegistry
	key    string
}

func (r *progressReporter) PhaseChanged(p radar.Phase) { r.active.SetPhase(r.key, p) }

func (r *progressReporter) FrameCaptured(cur, total int) {
	r.active.SetFrameProgress(r.key, cur, total)
}
