package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/five82/leafrun/internal/connectivity"
	"github.com/five82/leafrun/internal/localstore"
	"github.com/five82/leafrun/internal/queue"
	"github.com/five82/leafrun/internal/route"
	"github.com/five82/leafrun/internal/state"
	"github.com/five82/leafrun/internal/syncer"
)

// Phase machine events.
const (
	EventLoaded = "loaded"
	EventFailed = "failed"
	EventReload = "reload"
)

// Remote is the server surface the controller needs.
type Remote interface {
	syncer.Endpoints
	FetchRoute(ctx context.Context, promoterID, date string) (route.Snapshot, bool, error)
	InitRoute(ctx context.Context) error
}

// Outcome tells the caller what happened to an action.
type Outcome struct {
	// Queued is true when the action was stored for a later drain.
	Queued bool
	// Summary is set when a report was delivered directly.
	Summary *route.Summary
}

// Options wires a Controller.
type Options struct {
	Store           *localstore.Store
	Queue           *queue.Manager
	Engine          *syncer.Engine
	Remote          Remote
	Oracle          connectivity.Oracle
	View            *state.Store
	PromoterID      string
	PriorityKeyword string
	RequestTimeout  time.Duration
	Logger          *zap.SugaredLogger
	// Today returns the route date; defaults to the local date.
	Today func() string
}

// Controller owns the route and applies user actions to it. One action's
// persist, submit and enqueue steps run to completion before the next action
// starts.
type Controller struct {
	mu      sync.Mutex
	model   Model
	phase   *fsm.FSM
	opts    Options
	logger  *zap.SugaredLogger
	timeout time.Duration
}

// New returns a Controller in the loading phase.
func New(opts Options) *Controller {
	if opts.Today == nil {
		opts.Today = func() string { return time.Now().Format("2006-01-02") }
	}
	if opts.View == nil {
		opts.View = &state.Store{}
	}
	c := &Controller{
		opts:    opts,
		logger:  opts.Logger,
		timeout: opts.RequestTimeout,
	}
	if c.logger == nil {
		c.logger = zap.NewNop().Sugar()
	}
	if c.timeout <= 0 {
		c.timeout = 15 * time.Second
	}
	c.model = Model{Phase: state.PhaseLoading, PriorityKeyword: opts.PriorityKeyword}
	c.phase = fsm.NewFSM(
		string(state.PhaseLoading),
		fsm.Events{
			{Name: EventLoaded, Src: []string{string(state.PhaseLoading)}, Dst: string(state.PhaseReady)},
			{Name: EventFailed, Src: []string{string(state.PhaseLoading)}, Dst: string(state.PhaseLoadError)},
			{Name: EventReload, Src: []string{string(state.PhaseReady), string(state.PhaseLoadError)}, Dst: string(state.PhaseLoading)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				c.logger.Debugw("route phase changed", "from", e.Src, "to", e.Dst, "event", e.Event)
			},
		},
	)
	return c
}

// View returns the snapshot store the controller publishes into.
func (c *Controller) View() *state.Store {
	return c.opts.View
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() state.Phase {
	return state.Phase(c.phase.Current())
}

// Route returns a copy of the current route.
func (c *Controller) Route() route.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model.Route.Clone()
}

func (c *Controller) fire(ctx context.Context, event string) {
	if err := c.phase.Event(ctx, event); err != nil {
		var noTransition fsm.NoTransitionError
		if !errors.As(err, &noTransition) {
			c.logger.Warnw("phase transition rejected", "event", event, "phase", c.phase.Current(), "error", err)
		}
	}
	c.model.Phase = state.Phase(c.phase.Current())
}

// Load obtains the route. Online, a fresh fetch wins and the cache is the
// fallback; offline, only the cache is consulted. When the server has no
// route for today it is asked to create one and the fetch is retried once.
// Completions still waiting in the queue are reapplied on top of server data.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked(ctx)
}

func (c *Controller) loadLocked(ctx context.Context) error {
	if c.phase.Current() != string(state.PhaseLoading) {
		c.fire(ctx, EventReload)
	}
	c.model.Online = c.online()
	c.publish(nil)

	var netErr error
	if c.model.Online {
		snap, err := c.fetch(ctx)
		if err == nil {
			snap = c.reapplyPending(snap)
			c.model.Route = snap
			c.opts.Store.Save(localstore.KeyRoute, snap)
			c.fire(ctx, EventLoaded)
			c.logger.Infow("route loaded from server", "route", snap.ID, "points", len(snap.Points))
			c.publish(func(s *state.Snapshot) { s.FromCache = false })
			return nil
		}
		netErr = err
		c.logger.Warnw("route fetch failed, trying cache", "error", err)
	}

	var cached route.Snapshot
	if c.opts.Store.Load(localstore.KeyRoute, &cached) && cached.Loaded() {
		c.model.Route = cached
		c.fire(ctx, EventLoaded)
		c.logger.Infow("route loaded from cache", "route", cached.ID, "points", len(cached.Points))
		c.publish(func(s *state.Snapshot) { s.FromCache = true })
		return nil
	}

	err := ErrNoRoute
	if netErr != nil {
		err = fmt.Errorf("%w: %w", ErrNoRoute, netErr)
	}
	c.model.Route = route.Snapshot{}
	c.fire(ctx, EventFailed)
	c.publish(nil)
	c.opts.View.Fail(err)
	return err
}

func (c *Controller) fetch(ctx context.Context) (route.Snapshot, error) {
	date := c.opts.Today()
	snap, ok, err := c.fetchOnce(ctx, date)
	if err != nil {
		return route.Snapshot{}, err
	}
	if ok {
		return snap, nil
	}

	c.logger.Infow("no route on server, requesting one", "promoter", c.opts.PromoterID, "date", date)
	initCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err = c.opts.Remote.InitRoute(initCtx)
	cancel()
	if err != nil {
		return route.Snapshot{}, fmt.Errorf("init route: %w", err)
	}
	snap, ok, err = c.fetchOnce(ctx, date)
	if err != nil {
		return route.Snapshot{}, err
	}
	if !ok {
		return route.Snapshot{}, fmt.Errorf("server has no route for %s", date)
	}
	return snap, nil
}

func (c *Controller) fetchOnce(ctx context.Context, date string) (route.Snapshot, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.opts.Remote.FetchRoute(ctx, c.opts.PromoterID, date)
}

// reapplyPending marks points completed for every completion still queued,
// so server data never shows an undelivered completion as open.
func (c *Controller) reapplyPending(snap route.Snapshot) route.Snapshot {
	for _, action := range c.opts.Queue.ListPending() {
		p, ok := action.Payload.(queue.CompletePoint)
		if !ok {
			continue
		}
		if next, err := snap.Complete(p.PointID, p.Leaflets, p.Photo); err == nil {
			snap = next
		}
	}
	return snap
}

// CompletePoint marks a point completed with the typed leaflet count. The
// change is persisted before any network call and is never rolled back.
func (c *Controller) CompletePoint(ctx context.Context, pointID int64, leaflets, photo string) (Outcome, error) {
	return c.dispatch(ctx, CompletePoint{PointID: pointID, Leaflets: leaflets, Photo: photo})
}

// SendReport sends the daily report, or queues it when that is not possible.
func (c *Controller) SendReport(ctx context.Context) (Outcome, error) {
	return c.dispatch(ctx, SendReport{})
}

// Optimize reorders the remaining points and persists the new order.
func (c *Controller) Optimize(ctx context.Context) error {
	_, err := c.dispatch(ctx, Optimize{})
	return err
}

func (c *Controller) dispatch(ctx context.Context, intent Intent) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.model.Phase = state.Phase(c.phase.Current())
	c.model.Online = c.online()
	c.model.Pending = c.opts.Queue.Len()
	next, effects, err := Reduce(c.model, intent)
	if err != nil {
		c.publish(nil)
		c.opts.View.Fail(err)
		return Outcome{}, err
	}
	c.model = next

	out, err := c.run(ctx, effects)
	if err != nil {
		c.publish(nil)
		c.opts.View.Fail(err)
		return out, err
	}
	c.publish(func(s *state.Snapshot) {
		if out.Summary != nil {
			s.LastReport = out.Summary
		}
	})
	c.opts.View.Notify(describe(intent, out, c.model.Online))
	return out, nil
}

// run executes effects in order. A failed direct submission is fed back
// through Reduce, which turns it into an enqueue.
func (c *Controller) run(ctx context.Context, effects []Effect) (Outcome, error) {
	var out Outcome
	for len(effects) > 0 {
		eff := effects[0]
		effects = effects[1:]

		switch e := eff.(type) {
		case PersistRoute:
			c.opts.Store.Save(localstore.KeyRoute, e.Route)
		case SubmitCompletion:
			if err := c.submit(ctx, func(ctx context.Context) error {
				return c.opts.Remote.CompletePoint(ctx, e.Payload)
			}); err != nil {
				c.logger.Warnw("direct completion failed, queueing", "point", e.Payload.PointID, "error", err)
				effects = c.fallback(e.Payload, effects)
			}
		case SubmitReport:
			var summary route.Summary
			err := c.submit(ctx, func(ctx context.Context) error {
				var err error
				summary, err = c.opts.Remote.SendReport(ctx, e.RouteID)
				return err
			})
			if err != nil {
				c.logger.Warnw("direct report failed, queueing", "route", e.RouteID, "error", err)
				effects = c.fallback(queue.SendReport{RouteID: e.RouteID}, effects)
				continue
			}
			out.Summary = &summary
		case EnqueueAction:
			if _, err := c.opts.Queue.Enqueue(e.Payload); err != nil {
				return out, fmt.Errorf("queue %s: %w", e.Payload.Kind(), err)
			}
			out.Queued = true
		default:
			return out, fmt.Errorf("unhandled effect %T", eff)
		}
	}
	return out, nil
}

func (c *Controller) submit(ctx context.Context, call func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return call(ctx)
}

func (c *Controller) fallback(payload queue.Payload, rest []Effect) []Effect {
	_, more, err := Reduce(c.model, DeliveryFailed{Payload: payload})
	if err != nil {
		c.logger.Errorw("cannot queue failed delivery", "kind", payload.Kind(), "error", err)
		return rest
	}
	return append(more, rest...)
}

// Sync drains the queue and, when anything was delivered, reloads the route
// so server-derived values replace local ones.
func (c *Controller) Sync(ctx context.Context) (syncer.Result, error) {
	res, err := c.opts.Engine.Drain(ctx, c.opts.Remote)
	if err != nil {
		return res, err
	}
	c.opts.View.Update(func(s *state.Snapshot) {
		s.LastDrain = &state.DrainResult{Synced: res.Synced, Failed: res.Failed, Finished: res.Finished}
		s.LastSync = res.Finished
		s.Pending = c.opts.Queue.Len()
	})
	if res.Synced == 0 {
		return res, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadLocked(ctx); err != nil {
		c.logger.Warnw("reload after sync failed", "error", err)
	}
	return res, nil
}

// OnOnline handles a transition to online: the flag is published and the
// queue drained.
func (c *Controller) OnOnline(ctx context.Context) (syncer.Result, error) {
	c.SetOnline(true)
	return c.Sync(ctx)
}

// SetOnline refreshes the connectivity flag in the published snapshot.
func (c *Controller) SetOnline(online bool) {
	c.opts.View.Update(func(s *state.Snapshot) {
		s.Online = online
	})
}

func (c *Controller) online() bool {
	return c.opts.Oracle != nil && c.opts.Oracle.IsOnline()
}

// publish copies the model into the view. extra runs under the view lock.
func (c *Controller) publish(extra func(*state.Snapshot)) {
	pending := c.opts.Queue.Len()
	lastSync, _ := c.opts.Engine.LastSync()
	c.opts.View.Update(func(s *state.Snapshot) {
		s.Phase = c.model.Phase
		s.Route = c.model.Route
		s.Online = c.model.Online
		s.Pending = pending
		s.LastSync = lastSync
		if extra != nil {
			extra(s)
		}
	})
}

func describe(intent Intent, out Outcome, online bool) string {
	switch in := intent.(type) {
	case CompletePoint:
		if out.Queued {
			return fmt.Sprintf("Point %d saved offline; it will sync when the connection returns", in.PointID)
		}
		return fmt.Sprintf("Point %d completed", in.PointID)
	case SendReport:
		if out.Queued && online {
			return "Report queued behind earlier actions; it will be sent on the next sync"
		}
		if out.Queued {
			return "Report saved offline; it will be sent when the connection returns"
		}
		if out.Summary != nil {
			return fmt.Sprintf("Report sent: %d of %d points", out.Summary.Completed, out.Summary.Total)
		}
		return "Report sent"
	case Optimize:
		return "Route optimized"
	default:
		return ""
	}
}
