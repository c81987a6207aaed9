package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/five82/leafrun/internal/route"
)

// Phase is the route controller's lifecycle stage.
type Phase string

const (
	PhaseLoading   Phase = "loading"
	PhaseReady     Phase = "ready"
	PhaseLoadError Phase = "load_error"
)

// DrainResult is the outcome of the most recent sync pass.
type DrainResult struct {
	Synced   int
	Failed   int
	Finished time.Time
}

// Snapshot represents the latest data available to the UI.
type Snapshot struct {
	Phase       Phase
	Route       route.Snapshot
	FromCache   bool
	Pending     int
	Online      bool
	LastSync    time.Time
	LastDrain   *DrainResult
	LastReport  *route.Summary
	Notice      string
	LastError   error
	LastUpdated time.Time
}

// Progress is shorthand for the route's completion counters.
func (s Snapshot) Progress() route.Progress {
	return s.Route.Progress()
}

// Store coordinates concurrent updates to the snapshot.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// Update applies fn to the stored snapshot under the write lock. fn must not
// retain the pointer.
func (s *Store) Update(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.snapshot)
	s.snapshot.Route = s.snapshot.Route.Clone()
	s.snapshot.LastUpdated = time.Now()
}

// Fail records err without touching the rest of the snapshot.
func (s *Store) Fail(err error) {
	s.Update(func(snap *Snapshot) {
		snap.LastError = err
	})
}

// Notify records a user-facing message and clears the last error.
func (s *Store) Notify(msg string) {
	s.Update(func(snap *Snapshot) {
		snap.Notice = msg
		snap.LastError = nil
	})
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Route = s.snapshot.Route.Clone()
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	if s.snapshot.LastDrain != nil {
		d := *s.snapshot.LastDrain
		snap.LastDrain = &d
	}
	if s.snapshot.LastReport != nil {
		r := *s.snapshot.LastReport
		snap.LastReport = &r
	}
	return snap
}
