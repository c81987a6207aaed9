package queue

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/five82/leafrun/internal/localstore"
)

func newManager(t *testing.T, opts ...Option) (*Manager, *localstore.Store) {
	t.Helper()
	store := localstore.New(localstore.NewMemory())
	return NewManager(store, opts...), store
}

// flakyBackend fails the next failGets reads and otherwise defers to an
// in-memory backend.
type flakyBackend struct {
	*localstore.Memory
	failGets int
}

func (b *flakyBackend) Get(key string) ([]byte, error) {
	if b.failGets > 0 {
		b.failGets--
		return nil, errors.New("read: input/output error")
	}
	return b.Memory.Get(key)
}

func TestEnqueue_KeepsQueueWhenReadFails(t *testing.T) {
	backend := &flakyBackend{Memory: localstore.NewMemory()}
	m := NewManager(localstore.New(backend))

	for i := int64(1); i <= 3; i++ {
		if _, err := m.Enqueue(CompletePoint{PointID: i, Leaflets: 5}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	backend.failGets = 1
	if _, err := m.Enqueue(SendReport{RouteID: 9}); !errors.Is(err, ErrUnreadable) {
		t.Fatalf("Enqueue during failed read = %v, want ErrUnreadable", err)
	}
	if _, err := m.Enqueue(SendReport{RouteID: 9}); err != nil {
		t.Fatalf("Enqueue after recovery: %v", err)
	}

	got := m.ListPending()
	if len(got) != 4 {
		t.Fatalf("ListPending = %v, want 3 completions and the report", got)
	}
	for i, a := range got[:3] {
		if cp, ok := a.Payload.(CompletePoint); !ok || cp.PointID != int64(i+1) {
			t.Fatalf("action %d = %v, want completion of point %d", i, a, i+1)
		}
	}
	if _, ok := got[3].Payload.(SendReport); !ok {
		t.Fatalf("last action = %v, want the report", got[3])
	}
}

func TestEnqueue_LeavesUndecodableQueueAlone(t *testing.T) {
	m, store := newManager(t)
	store.Save(localstore.KeyPending, map[string]int{"version": 2})

	if _, err := m.Enqueue(CompletePoint{PointID: 1}); !errors.Is(err, ErrUnreadable) {
		t.Fatalf("Enqueue over non-array queue = %v, want ErrUnreadable", err)
	}
	var blob map[string]int
	if !store.Load(localstore.KeyPending, &blob) || blob["version"] != 2 {
		t.Fatalf("stored queue = %v, want original blob untouched", blob)
	}

	m.Remove("anything")
	if !store.Load(localstore.KeyPending, &blob) || blob["version"] != 2 {
		t.Fatalf("Remove rewrote the unreadable queue: %v", blob)
	}
}

func TestEnqueue_AppendsInOrder(t *testing.T) {
	m, _ := newManager(t)

	first, err := m.Enqueue(CompletePoint{PointID: 1, Leaflets: 10})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	second, err := m.Enqueue(SendReport{RouteID: 7})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("ids collide: %s", first.ID)
	}

	got := m.ListPending()
	if len(got) != 2 {
		t.Fatalf("ListPending len = %d, want 2", len(got))
	}
	if got[0].ID != first.ID || got[1].ID != second.ID {
		t.Fatalf("order = [%s %s], want [%s %s]", got[0].ID, got[1].ID, first.ID, second.ID)
	}
	cp, ok := got[0].Payload.(CompletePoint)
	if !ok || cp.PointID != 1 || cp.Leaflets != 10 {
		t.Fatalf("payload[0] = %#v, want CompletePoint{1, 10}", got[0].Payload)
	}
	if got[1].Kind() != KindSendReport {
		t.Fatalf("kind[1] = %q, want %q", got[1].Kind(), KindSendReport)
	}
}

func TestEnqueue_UniqueIDsWithinSameMillisecond(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	m, _ := newManager(t, WithClock(func() time.Time { return fixed }))

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		a, err := m.Enqueue(CompletePoint{PointID: int64(i)})
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		if seen[a.ID] {
			t.Fatalf("duplicate id %s", a.ID)
		}
		seen[a.ID] = true
	}
}

func TestEnqueue_NilPayload(t *testing.T) {
	m, _ := newManager(t)
	if _, err := m.Enqueue(nil); err == nil {
		t.Fatalf("Enqueue(nil) succeeded, want error")
	}
	if m.Len() != 0 {
		t.Fatalf("Len = %d, want 0", m.Len())
	}
}

func TestRemove_Idempotent(t *testing.T) {
	m, _ := newManager(t)
	a, _ := m.Enqueue(CompletePoint{PointID: 1, Leaflets: 3})
	b, _ := m.Enqueue(CompletePoint{PointID: 2, Leaflets: 4})

	m.Remove(a.ID)
	m.Remove(a.ID)
	m.Remove("missing")

	got := m.ListPending()
	if len(got) != 1 || got[0].ID != b.ID {
		t.Fatalf("ListPending = %v, want only %s", got, b.ID)
	}
}

func TestClearAndHasPending(t *testing.T) {
	m, _ := newManager(t)
	if m.HasPending() {
		t.Fatalf("HasPending on empty queue = true")
	}
	_, _ = m.Enqueue(SendReport{RouteID: 1})
	if !m.HasPending() {
		t.Fatalf("HasPending after enqueue = false")
	}
	m.Clear()
	if m.HasPending() || m.Len() != 0 {
		t.Fatalf("queue not empty after Clear: len=%d", m.Len())
	}
}

func TestClear_RemovesStoredKey(t *testing.T) {
	m, store := newManager(t)
	_, _ = m.Enqueue(CompletePoint{PointID: 4})
	m.Clear()

	var raws []json.RawMessage
	found, err := store.LoadErr(localstore.KeyPending, &raws)
	if err != nil || found {
		t.Fatalf("LoadErr after Clear = (%v, %v), want key gone", found, err)
	}
	if _, err := m.Enqueue(CompletePoint{PointID: 5}); err != nil || m.Len() != 1 {
		t.Fatalf("Enqueue after Clear: err=%v len=%d", err, m.Len())
	}
}

func TestManager_SurvivesNewInstance(t *testing.T) {
	store := localstore.New(localstore.NewMemory())
	a, _ := NewManager(store).Enqueue(CompletePoint{PointID: 9, Leaflets: 2, Photo: "door.jpg"})

	got := NewManager(store).ListPending()
	if len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("reloaded queue = %v, want [%s]", got, a.ID)
	}
	if cp := got[0].Payload.(CompletePoint); cp.Photo != "door.jpg" {
		t.Fatalf("photo = %q, want door.jpg", cp.Photo)
	}
}

func TestConcurrentEnqueueLosesNothing(t *testing.T) {
	m, _ := newManager(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := m.Enqueue(CompletePoint{PointID: int64(i)}); err != nil {
				t.Errorf("Enqueue: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if n := len(m.ListPending()); n != 50 {
		t.Fatalf("ListPending len = %d, want 50", n)
	}
}

func TestUnknownRecordKeptButSkipped(t *testing.T) {
	m, store := newManager(t)
	known, _ := m.Enqueue(SendReport{RouteID: 3})

	var raws []json.RawMessage
	store.Load(localstore.KeyPending, &raws)
	raws = append(raws, json.RawMessage(`{"id":"future","type":"upload_photo","data":{},"timestamp":1}`))
	store.Save(localstore.KeyPending, raws)

	got := m.ListPending()
	if len(got) != 1 || got[0].ID != known.ID {
		t.Fatalf("ListPending = %v, want only %s", got, known.ID)
	}

	m.Remove(known.ID)
	if m.Len() != 1 {
		t.Fatalf("Len after removing known action = %d, want the unknown record kept", m.Len())
	}
	m.Remove("future")
	if m.Len() != 0 {
		t.Fatalf("Len = %d, want 0", m.Len())
	}
}

func TestObserverSeesDepth(t *testing.T) {
	var depths []int
	m, _ := newManager(t, WithObserver(func(n int) { depths = append(depths, n) }))

	a, _ := m.Enqueue(CompletePoint{PointID: 1})
	_, _ = m.Enqueue(CompletePoint{PointID: 2})
	m.Remove(a.ID)
	m.Remove(a.ID)
	m.Clear()

	want := []int{1, 2, 1, 0}
	if len(depths) != len(want) {
		t.Fatalf("depths = %v, want %v", depths, want)
	}
	for i := range want {
		if depths[i] != want[i] {
			t.Fatalf("depths = %v, want %v", depths, want)
		}
	}
}

func TestPendingAction_Envelope(t *testing.T) {
	a := PendingAction{
		ID:        "abc",
		Payload:   CompletePoint{PointID: 4, Leaflets: 12},
		CreatedAt: time.UnixMilli(1000),
	}
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for _, want := range []string{`"id":"abc"`, `"type":"complete_point"`, `"point_id":4`, `"timestamp":1000`} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("envelope %s missing %s", data, want)
		}
	}

	var back PendingAction
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.ID != a.ID || back.Payload != a.Payload || !back.CreatedAt.Equal(a.CreatedAt) {
		t.Fatalf("decoded = %#v, want %#v", back, a)
	}
}

func TestPendingAction_String(t *testing.T) {
	tests := []struct {
		action PendingAction
		want   string
	}{
		{PendingAction{Payload: CompletePoint{PointID: 2, Leaflets: 5}}, "complete point 2 (5 leaflets)"},
		{PendingAction{Payload: SendReport{RouteID: 8}}, "send report for route 8"},
	}
	for _, tt := range tests {
		if got := tt.action.String(); got != tt.want {
			t.Fatalf("String() = %q, want %q", got, tt.want)
		}
	}
}
