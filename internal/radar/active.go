package radar

import (
	"sync"
	"time"
)

// UpdateProgress is a snapshot of an in-flight acquisition for one location.
// It exists only while the update runs; absence means nothing is in flight.
type UpdateProgress struct {
	Folder       string
	StartedAt    time.Time
	Phase        Phase
	CurrentFrame int
	TotalFrames  int
}

// ActiveRegistry tracks at most one in-flight update per location key.
// It is the single-flight mechanism: Begin either registers this caller as
// the sole updater or fails, atomically with respect to concurrent callers.
type ActiveRegistry struct {
	mu     sync.Mutex
	active map[string]*UpdateProgress
}

func NewActiveRegistry() *ActiveRegistry {
	return &ActiveRegistry{active: make(map[string]*UpdateProgress)}
}

// Begin registers folder as the active update for key. Returns false if an
// update is already registered, in which case the caller must back off.
func (r *ActiveRegistry) Begin(key, folder string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.active[key]; exists {
		return false
	}
	r.active[key] = &UpdateProgress{
		Folder:    folder,
		StartedAt: now,
		Phase:     PhaseInitializing,
	}
	return true
}

// Finish clears the active marker for key. Safe to call on every exit path,
// including paths where Begin never succeeded.
func (r *ActiveRegistry) Finish(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, key)
}

// Get returns a copy of the in-flight progress for key, if any.
func (r *ActiveRegistry) Get(key string) (UpdateProgress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.active[key]
	if !ok {
		return UpdateProgress{}, false
	}
	return *p, true
}

// ActiveFolder returns the folder currently being written for key, or "".
func (r *ActiveRegistry) ActiveFolder(key string) string {
	p, ok := r.Get(key)
	if !ok {
		return ""
	}
	return p.Folder
}

// SetPhase records a phase transition for key's in-flight update.
func (r *ActiveRegistry) SetPhase(key string, phase Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.active[key]; ok {
		p.Phase = phase
	}
}

// SetFrameProgress records frame counters for key's in-flight update.
func (r *ActiveRegistry) SetFrameProgress(key string, current, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.active[key]; ok {
		p.CurrentFrame = current
		p.TotalFrames = total
	}
}
