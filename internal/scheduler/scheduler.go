package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/radarcache/radarcache/internal/cache"
	"github.com/radarcache/radarcache/internal/radar"
)

// CacheService is the slice of the cache orchestrator the background loops
// consume.
type CacheService interface {
	TriggerUpdate(loc radar.Location) cache.UpdateStatus
	KnownLocations() ([]radar.Location, error)
	RemoveExpired(retention time.Duration) (folders, debug int, err error)
}

// Prewarmer readies the acquisition resource ahead of a refresh cycle.
type Prewarmer interface {
	Warmup(ctx context.Context) error
}

// Config holds the scheduler's externally-required timing settings.
type Config struct {
	RefreshInterval time.Duration
	StartupDelay    time.Duration
	StaggerDelay    time.Duration
	Retention       time.Duration
	CleanupInterval time.Duration
}

// Scheduler runs the two periodic loops: location refresh and retention
// cleanup. Both absorb per-cycle errors without terminating.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   CacheService
	prewarmer Prewarmer
	cfg       Config
}

// New creates a new Scheduler.
func New(service CacheService, prewarmer Prewarmer, cfg Config) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		service:   service,
		prewarmer: prewarmer,
		cfg:       cfg,
	}
}

// Start schedules both periodic jobs and starts the underlying scheduler.
// The refresh loop waits out the startup delay before its first cycle.
func (s *Scheduler) Start() error {
	minutes := int(s.cfg.RefreshInterval.Minutes())
	if minutes <= 0 {
		minutes = 15
	}
	_, err := s.scheduler.Every(minutes).Minutes().
		StartAt(time.Now().Add(s.cfg.StartupDelay)).
		Do(s.refreshCycle)
	if err != nil {
		return err
	}

	hours := int(s.cfg.CleanupInterval.Hours())
	if hours <= 0 {
		hours = 1
	}
	_, err = s.scheduler.Every(hours).Hours().Do(s.cleanupCycle)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// refreshCycle re-discovers known locations and triggers a refresh for each,
// staggered so a burst of triggers does not pile up on the acquisition
// permit.
func (s *Scheduler) refreshCycle() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: refresh cycle panic: %v", r)
		}
	}()

	log.Println("scheduler: running radar refresh cycle")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.prewarmer != nil {
		if err := s.prewarmer.Warmup(ctx); err != nil {
			// Not fatal; the first triggered run pays the warmup cost itself.
			log.Printf("scheduler: prewarm failed: %v", err)
		}
	}

	// Discovery runs every cycle: new locations appear via direct requests.
	locs, err := s.service.KnownLocations()
	if err != nil {
		log.Printf("scheduler: discover locations: %v", err)
		return
	}
	if len(locs) == 0 {
		log.Println("scheduler: no known locations yet; nothing to refresh")
		return
	}

	for i, loc := range locs {
		if i > 0 && s.cfg.StaggerDelay > 0 {
			time.Sleep(s.cfg.StaggerDelay)
		}
		st := s.service.TriggerUpdate(loc)
		log.Printf("scheduler: %s triggered=%v message=%q", loc.Key(), st.Triggered, st.Message)
	}

	log.Println("scheduler: completed radar refresh cycle")
}

// cleanupCycle deletes folders and debug artifacts past the retention window.
func (s *Scheduler) cleanupCycle() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: cleanup cycle panic: %v", r)
		}
	}()

	folders, debug, err := s.service.RemoveExpired(s.cfg.Retention)
	if err != nil {
		log.Printf("scheduler: cleanup failed: %v", err)
		return
	}
	log.Printf("scheduler: cleanup removed %d folders, %d debug artifacts", folders, debug)
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
