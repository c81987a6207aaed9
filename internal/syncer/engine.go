package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/five82/leafrun/internal/connectivity"
	"github.com/five82/leafrun/internal/localstore"
	"github.com/five82/leafrun/internal/queue"
	"github.com/five82/leafrun/internal/route"
)

var (
	// ErrDrainInProgress is returned when another drain holds the lock.
	ErrDrainInProgress = errors.New("drain already in progress")
	// ErrOffline is returned when the oracle reports no connectivity.
	ErrOffline = errors.New("offline")
)

const defaultActionTimeout = 15 * time.Second

// Endpoints delivers queued actions to the server.
type Endpoints interface {
	CompletePoint(ctx context.Context, p queue.CompletePoint) error
	SendReport(ctx context.Context, routeID int64) (route.Summary, error)
}

// Result summarises one drain.
type Result struct {
	Synced   int
	Failed   int
	Started  time.Time
	Finished time.Time
}

// Progress is called after each action with the number processed so far.
type Progress func(current, total int)

// Engine replays the pending queue against the server.
type Engine struct {
	queue   *queue.Manager
	store   *localstore.Store
	oracle  connectivity.Oracle
	sem     *semaphore.Weighted
	timeout time.Duration
	now     func() time.Time
	logger  *zap.SugaredLogger
	metrics *Metrics
	onStep  Progress
}

// Option configures an Engine.
type Option func(*Engine)

// WithActionTimeout bounds each delivery. A timed out action stays queued.
func WithActionTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics records drain outcomes.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithProgress registers a per-action progress callback.
func WithProgress(fn Progress) Option {
	return func(e *Engine) {
		e.onStep = fn
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New returns an Engine draining q and recording the sync cursor in store.
func New(q *queue.Manager, store *localstore.Store, oracle connectivity.Oracle, opts ...Option) *Engine {
	e := &Engine{
		queue:   q,
		store:   store,
		oracle:  oracle,
		sem:     semaphore.NewWeighted(1),
		timeout: defaultActionTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop().Sugar()
	}
	return e
}

// Drain delivers every action queued at the time of the call, oldest first.
// Failed actions stay queued and do not stop the pass. Only one drain runs at
// a time; a concurrent call returns ErrDrainInProgress without touching the
// queue.
func (e *Engine) Drain(ctx context.Context, ep Endpoints) (Result, error) {
	if !e.sem.TryAcquire(1) {
		e.metrics.rejected()
		return Result{}, ErrDrainInProgress
	}
	defer e.sem.Release(1)

	if e.oracle != nil && !e.oracle.IsOnline() {
		e.metrics.rejected()
		return Result{}, ErrOffline
	}

	res := Result{Started: e.now()}
	pending := e.queue.ListPending()
	total := len(pending)
	if total > 0 {
		e.logger.Infow("drain started", "pending", total)
	}

	for i, action := range pending {
		if err := ctx.Err(); err != nil {
			res.Failed += total - i
			e.logger.Warnw("drain interrupted", "remaining", total-i, "error", err)
			break
		}
		if err := e.deliver(ctx, ep, action); err != nil {
			res.Failed++
			e.metrics.action(action.Kind(), false)
			e.logger.Warnw("action delivery failed", "id", action.ID, "kind", action.Kind(), "error", err)
		} else {
			e.queue.Remove(action.ID)
			res.Synced++
			e.metrics.action(action.Kind(), true)
			e.logger.Debugw("action delivered", "id", action.ID, "kind", action.Kind())
		}
		if e.onStep != nil {
			e.onStep(i+1, total)
		}
	}

	res.Finished = e.now()
	e.store.Save(localstore.KeyLastSync, res.Finished)
	e.metrics.drained(e.queue.Len())
	if total > 0 {
		e.logger.Infow("drain finished", "synced", res.Synced, "failed", res.Failed)
	}
	return res, nil
}

func (e *Engine) deliver(ctx context.Context, ep Endpoints, action queue.PendingAction) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	switch p := action.Payload.(type) {
	case queue.CompletePoint:
		return ep.CompletePoint(ctx, p)
	case queue.SendReport:
		_, err := ep.SendReport(ctx, p.RouteID)
		return err
	default:
		return fmt.Errorf("no endpoint for action kind %q", action.Kind())
	}
}

// LastSync returns the completion time of the most recent drain.
func (e *Engine) LastSync() (time.Time, bool) {
	var t time.Time
	if !e.store.Load(localstore.KeyLastSync, &t) {
		return time.Time{}, false
	}
	return t, true
}
