package controller

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/five82/leafrun/internal/connectivity"
	"github.com/five82/leafrun/internal/localstore"
	"github.com/five82/leafrun/internal/queue"
	"github.com/five82/leafrun/internal/route"
	"github.com/five82/leafrun/internal/state"
	"github.com/five82/leafrun/internal/syncer"
)

type fakeRemote struct {
	mu        sync.Mutex
	route     *route.Snapshot
	afterInit *route.Snapshot
	fetchErr  error
	submitErr error
	fetches   int
	inits     int
	completed []queue.CompletePoint
	reports   []int64
	summary   route.Summary
}

func (f *fakeRemote) FetchRoute(ctx context.Context, promoterID, date string) (route.Snapshot, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return route.Snapshot{}, false, f.fetchErr
	}
	if f.route == nil {
		return route.Snapshot{}, false, nil
	}
	return f.route.Clone(), true, nil
}

func (f *fakeRemote) InitRoute(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	f.route = f.afterInit
	return nil
}

func (f *fakeRemote) CompletePoint(ctx context.Context, p queue.CompletePoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.completed = append(f.completed, p)
	if f.route != nil {
		if next, err := f.route.Complete(p.PointID, p.Leaflets, p.Photo); err == nil {
			f.route = &next
		}
	}
	return nil
}

func (f *fakeRemote) SendReport(ctx context.Context, routeID int64) (route.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return route.Summary{}, f.submitErr
	}
	f.reports = append(f.reports, routeID)
	return f.summary, nil
}

func (f *fakeRemote) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.completed) + len(f.reports)
}

func sampleRoute() route.Snapshot {
	return route.Snapshot{ID: 10, Points: []route.Point{
		{ID: 1, Address: "Lenina 1", Lat: 0, Lng: 0},
		{ID: 2, Address: "Lenina 2", Lat: 1, Lng: 1},
		{ID: 3, Address: "Mira 3", Lat: 2, Lng: 2},
	}}
}

type harness struct {
	ctrl   *Controller
	remote *fakeRemote
	store  *localstore.Store
	queue  *queue.Manager
	oracle *connectivity.Manual
}

func newHarness(t *testing.T, online bool, remote *fakeRemote) harness {
	t.Helper()
	store := localstore.New(localstore.NewMemory())
	q := queue.NewManager(store)
	oracle := connectivity.NewManual(online)
	ctrl := New(Options{
		Store:      store,
		Queue:      q,
		Engine:     syncer.New(q, store, oracle),
		Remote:     remote,
		Oracle:     oracle,
		PromoterID: "1",
		Today:      func() string { return "2024-05-01" },
	})
	return harness{ctrl: ctrl, remote: remote, store: store, queue: q, oracle: oracle}
}

func (h harness) persisted(t *testing.T) route.Snapshot {
	t.Helper()
	var snap route.Snapshot
	if !h.store.Load(localstore.KeyRoute, &snap) {
		t.Fatalf("no route persisted")
	}
	return snap
}

func TestLoad_OnlinePrefersNetworkAndCaches(t *testing.T) {
	r := sampleRoute()
	h := newHarness(t, true, &fakeRemote{route: &r})

	if err := h.ctrl.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h.ctrl.Phase() != state.PhaseReady {
		t.Fatalf("phase = %s, want ready", h.ctrl.Phase())
	}
	if got := h.persisted(t); got.ID != 10 || len(got.Points) != 3 {
		t.Fatalf("cached route = %+v", got)
	}
	view := h.ctrl.View().Snapshot()
	if view.Phase != state.PhaseReady || view.FromCache || !view.Online {
		t.Fatalf("view = %+v", view)
	}
}

func TestLoad_NetworkErrorFallsBackToCache(t *testing.T) {
	h := newHarness(t, true, &fakeRemote{fetchErr: errors.New("timeout")})
	h.store.Save(localstore.KeyRoute, sampleRoute())

	if err := h.ctrl.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !h.ctrl.View().Snapshot().FromCache || h.ctrl.Route().ID != 10 {
		t.Fatalf("route not loaded from cache")
	}
}

func TestLoad_OfflineUsesCacheWithoutNetwork(t *testing.T) {
	r := sampleRoute()
	h := newHarness(t, false, &fakeRemote{route: &r})
	h.store.Save(localstore.KeyRoute, sampleRoute())

	if err := h.ctrl.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h.remote.fetches != 0 {
		t.Fatalf("fetches = %d, want none while offline", h.remote.fetches)
	}
}

func TestLoad_NoSourceIsLoadError(t *testing.T) {
	h := newHarness(t, true, &fakeRemote{fetchErr: errors.New("dns")})

	err := h.ctrl.Load(context.Background())
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("Load err = %v, want ErrNoRoute", err)
	}
	if h.ctrl.Phase() != state.PhaseLoadError {
		t.Fatalf("phase = %s, want load_error", h.ctrl.Phase())
	}
	if h.ctrl.View().Snapshot().LastError == nil {
		t.Fatalf("load error not published")
	}

	r := sampleRoute()
	h.remote.fetchErr = nil
	h.remote.route = &r
	if err := h.ctrl.Load(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if h.ctrl.Phase() != state.PhaseReady {
		t.Fatalf("phase after reload = %s, want ready", h.ctrl.Phase())
	}
}

func TestLoad_InitsRouteWhenServerHasNone(t *testing.T) {
	r := sampleRoute()
	h := newHarness(t, true, &fakeRemote{afterInit: &r})

	if err := h.ctrl.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h.remote.inits != 1 || h.remote.fetches != 2 {
		t.Fatalf("inits = %d fetches = %d, want 1 and 2", h.remote.inits, h.remote.fetches)
	}
}

func TestCompletePoint_OfflineQueuesWithoutNetwork(t *testing.T) {
	h := newHarness(t, false, &fakeRemote{})
	h.store.Save(localstore.KeyRoute, sampleRoute())
	if err := h.ctrl.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	out, err := h.ctrl.CompletePoint(context.Background(), 3, "7", "")
	if err != nil {
		t.Fatalf("CompletePoint: %v", err)
	}
	if !out.Queued {
		t.Fatalf("outcome = %+v, want queued", out)
	}
	p, _ := h.persisted(t).Find(3)
	if !p.Completed || p.Leaflets != 7 {
		t.Fatalf("persisted point = %+v, want completed with 7", p)
	}
	pending := h.queue.ListPending()
	if len(pending) != 1 {
		t.Fatalf("pending = %v, want one action", pending)
	}
	if cp, ok := pending[0].Payload.(queue.CompletePoint); !ok || cp.PointID != 3 || cp.Leaflets != 7 {
		t.Fatalf("pending payload = %#v", pending[0].Payload)
	}
	if h.remote.calls() != 0 {
		t.Fatalf("network called while offline")
	}
	if view := h.ctrl.View().Snapshot(); view.Pending != 1 || view.Notice == "" {
		t.Fatalf("view = %+v", view)
	}
}

func TestCompletePoint_EmptyLeafletsRejected(t *testing.T) {
	h := newHarness(t, false, &fakeRemote{})
	h.store.Save(localstore.KeyRoute, sampleRoute())
	_ = h.ctrl.Load(context.Background())

	for _, text := range []string{"", "  ", "abc", "-1", "2.5"} {
		if _, err := h.ctrl.CompletePoint(context.Background(), 1, text, ""); !errors.Is(err, ErrValidation) {
			t.Fatalf("CompletePoint(%q) err = %v, want ErrValidation", text, err)
		}
	}
	if p, _ := h.persisted(t).Find(1); p.Completed {
		t.Fatalf("point mutated by rejected input")
	}
	if h.queue.Len() != 0 {
		t.Fatalf("queue len = %d, want 0", h.queue.Len())
	}
}

func TestCompletePoint_OnlineSubmitsDirectly(t *testing.T) {
	r := sampleRoute()
	h := newHarness(t, true, &fakeRemote{route: &r})
	_ = h.ctrl.Load(context.Background())

	out, err := h.ctrl.CompletePoint(context.Background(), 2, "15", "door.jpg")
	if err != nil {
		t.Fatalf("CompletePoint: %v", err)
	}
	if out.Queued || h.queue.Len() != 0 {
		t.Fatalf("online completion queued")
	}
	if len(h.remote.completed) != 1 || h.remote.completed[0].Photo != "door.jpg" {
		t.Fatalf("remote completions = %+v", h.remote.completed)
	}
}

func TestCompletePoint_FailedSubmitQueuesAndKeepsLocalChange(t *testing.T) {
	r := sampleRoute()
	h := newHarness(t, true, &fakeRemote{route: &r})
	_ = h.ctrl.Load(context.Background())
	h.remote.submitErr = errors.New("502")

	out, err := h.ctrl.CompletePoint(context.Background(), 1, "4", "")
	if err != nil {
		t.Fatalf("CompletePoint: %v", err)
	}
	if !out.Queued || h.queue.Len() != 1 {
		t.Fatalf("failed delivery not queued: %+v len %d", out, h.queue.Len())
	}
	if p, _ := h.persisted(t).Find(1); !p.Completed || p.Leaflets != 4 {
		t.Fatalf("local change rolled back: %+v", p)
	}
}

func TestCompletePoint_UnknownAndRepeat(t *testing.T) {
	h := newHarness(t, false, &fakeRemote{})
	h.store.Save(localstore.KeyRoute, sampleRoute())
	_ = h.ctrl.Load(context.Background())

	if _, err := h.ctrl.CompletePoint(context.Background(), 99, "1", ""); !errors.Is(err, route.ErrUnknownPoint) {
		t.Fatalf("unknown point err = %v", err)
	}
	if _, err := h.ctrl.CompletePoint(context.Background(), 1, "1", ""); err != nil {
		t.Fatalf("CompletePoint: %v", err)
	}
	if _, err := h.ctrl.CompletePoint(context.Background(), 1, "5", ""); !errors.Is(err, route.ErrAlreadyCompleted) {
		t.Fatalf("repeat err = %v", err)
	}
	if p, _ := h.persisted(t).Find(1); p.Leaflets != 1 {
		t.Fatalf("repeat completion changed leaflets to %d", p.Leaflets)
	}
}

func TestCompletePoint_BeforeLoadIsRejected(t *testing.T) {
	h := newHarness(t, false, &fakeRemote{})
	if _, err := h.ctrl.CompletePoint(context.Background(), 1, "1", ""); !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
}

func TestSendReport_OnlineAndOffline(t *testing.T) {
	r := sampleRoute()
	h := newHarness(t, true, &fakeRemote{route: &r, summary: route.Summary{Completed: 1, Total: 3}})
	_ = h.ctrl.Load(context.Background())

	out, err := h.ctrl.SendReport(context.Background())
	if err != nil {
		t.Fatalf("SendReport: %v", err)
	}
	if out.Queued || out.Summary == nil || out.Summary.Total != 3 {
		t.Fatalf("outcome = %+v, want direct summary", out)
	}
	if view := h.ctrl.View().Snapshot(); view.LastReport == nil || view.LastReport.Total != 3 {
		t.Fatalf("report not published: %+v", view.LastReport)
	}

	h.oracle.Set(false)
	out, err = h.ctrl.SendReport(context.Background())
	if err != nil {
		t.Fatalf("SendReport offline: %v", err)
	}
	pending := h.queue.ListPending()
	if !out.Queued || len(pending) != 1 || pending[0].Kind() != queue.KindSendReport {
		t.Fatalf("offline report not queued: %+v %v", out, pending)
	}
}

func TestSendReport_OnlineQueuesBehindPendingCompletions(t *testing.T) {
	r := sampleRoute()
	h := newHarness(t, false, &fakeRemote{route: &r, summary: route.Summary{Completed: 2, Total: 3}})
	h.store.Save(localstore.KeyRoute, sampleRoute())
	_ = h.ctrl.Load(context.Background())
	_, _ = h.ctrl.CompletePoint(context.Background(), 1, "10", "")
	_, _ = h.ctrl.CompletePoint(context.Background(), 2, "5", "")

	h.oracle.Set(true)
	out, err := h.ctrl.SendReport(context.Background())
	if err != nil {
		t.Fatalf("SendReport: %v", err)
	}
	if !out.Queued || out.Summary != nil {
		t.Fatalf("outcome = %+v, want the report queued", out)
	}
	if len(h.remote.reports) != 0 {
		t.Fatalf("report sent ahead of %d queued completions", h.queue.Len()-1)
	}
	pending := h.queue.ListPending()
	if len(pending) != 3 || pending[2].Kind() != queue.KindSendReport {
		t.Fatalf("pending = %v, want report last", pending)
	}

	res, err := h.ctrl.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if res.Synced != 3 || len(h.remote.completed) != 2 || len(h.remote.reports) != 1 {
		t.Fatalf("result = %+v, remote saw %d completions and %d reports",
			res, len(h.remote.completed), len(h.remote.reports))
	}
}

func TestDispatch_PublishesErrorThenNotice(t *testing.T) {
	h := newHarness(t, false, &fakeRemote{})
	h.store.Save(localstore.KeyRoute, sampleRoute())
	_ = h.ctrl.Load(context.Background())

	if _, err := h.ctrl.CompletePoint(context.Background(), 1, "abc", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	view := h.ctrl.View().Snapshot()
	if !errors.Is(view.LastError, ErrValidation) || view.Phase != state.PhaseReady {
		t.Fatalf("view after rejected input = %+v", view)
	}

	if _, err := h.ctrl.CompletePoint(context.Background(), 1, "3", ""); err != nil {
		t.Fatalf("CompletePoint: %v", err)
	}
	view = h.ctrl.View().Snapshot()
	if view.LastError != nil || view.Pending != 1 {
		t.Fatalf("view after completion = %+v", view)
	}
	if view.Notice != "Point 1 saved offline; it will sync when the connection returns" {
		t.Fatalf("Notice = %q", view.Notice)
	}
}

func TestOnOnline_DrainsThenReloads(t *testing.T) {
	r := sampleRoute()
	h := newHarness(t, false, &fakeRemote{route: &r})
	h.store.Save(localstore.KeyRoute, sampleRoute())
	_ = h.ctrl.Load(context.Background())
	_, _ = h.ctrl.CompletePoint(context.Background(), 1, "10", "")
	_, _ = h.ctrl.CompletePoint(context.Background(), 2, "5", "")
	_, _ = h.ctrl.SendReport(context.Background())

	h.oracle.Set(true)
	res, err := h.ctrl.OnOnline(context.Background())
	if err != nil {
		t.Fatalf("OnOnline: %v", err)
	}
	if res.Synced != 3 || res.Failed != 0 {
		t.Fatalf("result = %+v, want 3 synced", res)
	}
	if h.remote.fetches != 1 {
		t.Fatalf("fetches = %d, want a reload after sync", h.remote.fetches)
	}
	if len(h.remote.reports) != 1 || len(h.remote.completed) != 2 {
		t.Fatalf("remote saw %d completions and %d reports", len(h.remote.completed), len(h.remote.reports))
	}
	view := h.ctrl.View().Snapshot()
	if view.Pending != 0 || view.LastDrain == nil || view.LastDrain.Synced != 3 || view.FromCache {
		t.Fatalf("view = %+v", view)
	}
}

func TestReloadKeepsUndeliveredCompletions(t *testing.T) {
	r := sampleRoute()
	h := newHarness(t, false, &fakeRemote{route: &r})
	h.store.Save(localstore.KeyRoute, sampleRoute())
	_ = h.ctrl.Load(context.Background())
	_, _ = h.ctrl.CompletePoint(context.Background(), 3, "8", "")

	// Server still reports point 3 open because the action is queued.
	h.oracle.Set(true)
	if err := h.ctrl.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	p, _ := h.ctrl.Route().Find(3)
	if !p.Completed || p.Leaflets != 8 {
		t.Fatalf("point 3 regressed after reload: %+v", p)
	}
}

func TestOptimize_PersistsOrder(t *testing.T) {
	h := newHarness(t, false, &fakeRemote{})
	snap := route.Snapshot{ID: 1, Points: []route.Point{
		{ID: 1, Address: "a", Lat: 0, Lng: 0},
		{ID: 2, Address: "b", Lat: 10, Lng: 10},
		{ID: 3, Address: "c", Lat: 1, Lng: 1},
	}}
	h.store.Save(localstore.KeyRoute, snap)
	_ = h.ctrl.Load(context.Background())

	if err := h.ctrl.Optimize(context.Background()); err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	got := h.persisted(t)
	want := []int64{1, 3, 2}
	for i, id := range want {
		if got.Points[i].ID != id {
			t.Fatalf("order = %v, want %v", got.Points, want)
		}
	}
}
