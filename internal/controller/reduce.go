package controller

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/five82/leafrun/internal/queue"
	"github.com/five82/leafrun/internal/route"
	"github.com/five82/leafrun/internal/state"
)

var (
	// ErrValidation is returned for user input that cannot be accepted.
	ErrValidation = errors.New("invalid input")
	// ErrNoRoute is returned when an action needs a loaded route.
	ErrNoRoute = errors.New("no route loaded")
	// ErrNotReady is returned for intents that arrive outside the ready phase.
	ErrNotReady = errors.New("route not ready")
)

// Model is the controller's in-memory state.
type Model struct {
	Phase           state.Phase
	Route           route.Snapshot
	Online          bool
	Pending         int
	PriorityKeyword string
}

// Intent is a user or system request handled by Reduce.
type Intent interface{ isIntent() }

// CompletePoint asks to mark a point completed. Leaflets is raw user input.
type CompletePoint struct {
	PointID  int64
	Leaflets string
	Photo    string
}

// SendReport asks to send the daily report for the loaded route.
type SendReport struct{}

// Optimize asks to reorder the remaining points.
type Optimize struct{}

// DeliveryFailed reports that a direct submission did not go through.
type DeliveryFailed struct {
	Payload queue.Payload
}

func (CompletePoint) isIntent()  {}
func (SendReport) isIntent()     {}
func (Optimize) isIntent()       {}
func (DeliveryFailed) isIntent() {}

// Effect is a side effect the runtime must perform, in order.
type Effect interface{ isEffect() }

// PersistRoute writes the route snapshot to the local store.
type PersistRoute struct {
	Route route.Snapshot
}

// SubmitCompletion sends a completion straight to the server.
type SubmitCompletion struct {
	Payload queue.CompletePoint
}

// SubmitReport sends the report straight to the server.
type SubmitReport struct {
	RouteID int64
}

// EnqueueAction stores an action for the next drain.
type EnqueueAction struct {
	Payload queue.Payload
}

func (PersistRoute) isEffect()     {}
func (SubmitCompletion) isEffect() {}
func (SubmitReport) isEffect()     {}
func (EnqueueAction) isEffect()    {}

// Reduce computes the next model and the effects to run for intent. It
// performs no I/O. On error the model is returned unchanged with no effects.
func Reduce(m Model, intent Intent) (Model, []Effect, error) {
	switch in := intent.(type) {
	case CompletePoint:
		return reduceComplete(m, in)
	case SendReport:
		if m.Phase != state.PhaseReady {
			return m, nil, ErrNotReady
		}
		if !m.Route.Loaded() {
			return m, nil, ErrNoRoute
		}
		// Queued completions must reach the server before the report that
		// summarizes them, so the report joins the queue behind them.
		if m.Online && m.Pending == 0 {
			return m, []Effect{SubmitReport{RouteID: m.Route.ID}}, nil
		}
		return m, []Effect{EnqueueAction{Payload: queue.SendReport{RouteID: m.Route.ID}}}, nil
	case Optimize:
		if m.Phase != state.PhaseReady {
			return m, nil, ErrNotReady
		}
		next := m
		next.Route = route.Snapshot{ID: m.Route.ID, Points: route.Optimize(m.Route.Points, m.PriorityKeyword)}
		return next, []Effect{PersistRoute{Route: next.Route}}, nil
	case DeliveryFailed:
		if in.Payload == nil {
			return m, nil, fmt.Errorf("%w: delivery failure without payload", ErrValidation)
		}
		return m, []Effect{EnqueueAction{Payload: in.Payload}}, nil
	default:
		return m, nil, fmt.Errorf("unhandled intent %T", intent)
	}
}

func reduceComplete(m Model, in CompletePoint) (Model, []Effect, error) {
	if m.Phase != state.PhaseReady {
		return m, nil, ErrNotReady
	}
	leaflets, err := ParseLeaflets(in.Leaflets)
	if err != nil {
		return m, nil, err
	}
	updated, err := m.Route.Complete(in.PointID, leaflets, strings.TrimSpace(in.Photo))
	if err != nil {
		return m, nil, err
	}

	next := m
	next.Route = updated
	payload := queue.CompletePoint{PointID: in.PointID, Leaflets: leaflets, Photo: strings.TrimSpace(in.Photo)}
	effects := []Effect{PersistRoute{Route: updated}}
	if m.Online {
		effects = append(effects, SubmitCompletion{Payload: payload})
	} else {
		effects = append(effects, EnqueueAction{Payload: payload})
	}
	return next, effects, nil
}

// ParseLeaflets validates a leaflet count typed by the user.
func ParseLeaflets(text string) (int, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: leaflet count is required", ErrValidation)
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: leaflet count %q is not a number", ErrValidation, trimmed)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: leaflet count must not be negative", ErrValidation)
	}
	return n, nil
}
