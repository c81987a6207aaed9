package state

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/five82/leafrun/internal/route"
)

func TestStore_UpdateAndSnapshotClone(t *testing.T) {
	var s Store

	before := time.Now()
	s.Update(func(snap *Snapshot) {
		snap.Phase = PhaseReady
		snap.Route = route.Snapshot{ID: 4, Points: []route.Point{{ID: 1}, {ID: 2}}}
		snap.Pending = 3
		snap.LastDrain = &DrainResult{Synced: 2}
	})

	snap := s.Snapshot()
	if snap.Phase != PhaseReady || snap.Pending != 3 {
		t.Fatalf("snapshot = %#v, want ready with 3 pending", snap)
	}
	if len(snap.Route.Points) != 2 || snap.Route.Points[0].ID != 1 {
		t.Fatalf("snapshot route = %#v, want 2 points", snap.Route)
	}
	if snap.LastUpdated.Before(before) {
		t.Fatalf("LastUpdated = %v, want >= %v", snap.LastUpdated, before)
	}

	// Returned snapshot should be independent of the stored one.
	snap.Route.Points[0].Completed = true
	snap.LastDrain.Synced = 99
	snap2 := s.Snapshot()
	if snap2.Route.Points[0].Completed {
		t.Fatalf("Snapshot should clone route points")
	}
	if snap2.LastDrain.Synced != 2 {
		t.Fatalf("Snapshot should clone drain result; got %d want 2", snap2.LastDrain.Synced)
	}
}

func TestStore_UpdateDoesNotAliasCallerSlice(t *testing.T) {
	var s Store
	points := []route.Point{{ID: 1}}
	s.Update(func(snap *Snapshot) {
		snap.Route = route.Snapshot{ID: 1, Points: points}
	})
	points[0].Completed = true
	if s.Snapshot().Route.Points[0].Completed {
		t.Fatalf("store aliases the caller's point slice")
	}
}

func TestStore_FailKeepsPreviousData(t *testing.T) {
	var s Store
	s.Update(func(snap *Snapshot) {
		snap.Phase = PhaseReady
		snap.Pending = 1
	})

	origErr := errors.New("boom")
	s.Fail(origErr)

	snap := s.Snapshot()
	if snap.Phase != PhaseReady || snap.Pending != 1 {
		t.Fatalf("data changed on error: %#v", snap)
	}
	if snap.LastError == nil || snap.LastError.Error() != "boom" {
		t.Fatalf("LastError = %v, want boom", snap.LastError)
	}
	if !errors.Is(snap.LastError, origErr) {
		t.Fatalf("LastError should wrap the original")
	}
	if reflect.ValueOf(snap.LastError).Pointer() == reflect.ValueOf(origErr).Pointer() {
		t.Fatalf("Snapshot should clone error instance")
	}
}

func TestStore_NotifyClearsError(t *testing.T) {
	var s Store
	s.Fail(errors.New("boom"))
	s.Notify("saved 2 actions offline")

	snap := s.Snapshot()
	if snap.LastError != nil {
		t.Fatalf("LastError = %v, want nil", snap.LastError)
	}
	if snap.Notice != "saved 2 actions offline" {
		t.Fatalf("Notice = %q", snap.Notice)
	}
}

func TestSnapshot_ZeroValue(t *testing.T) {
	var s Store
	snap := s.Snapshot()
	if snap.Phase != "" || snap.Route.Loaded() || snap.LastDrain != nil {
		t.Fatalf("zero snapshot = %#v", snap)
	}
	if p := snap.Progress(); p.Total != 0 || p.Percent() != 0 {
		t.Fatalf("zero progress = %#v", p)
	}
}
