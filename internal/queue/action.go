package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind discriminates pending action payloads.
type Kind string

const (
	KindCompletePoint Kind = "complete_point"
	KindSendReport    Kind = "send_report"
)

// Payload is the typed body of a pending action. The set of implementations
// is closed; consumers switch over the concrete types.
type Payload interface {
	Kind() Kind
	isPayload()
}

// CompletePoint records a point completion waiting for delivery.
type CompletePoint struct {
	PointID  int64  `json:"point_id"`
	Leaflets int    `json:"leaflets"`
	Photo    string `json:"photo_url,omitempty"`
}

func (CompletePoint) Kind() Kind { return KindCompletePoint }
func (CompletePoint) isPayload() {}

// SendReport records a daily report waiting for delivery.
type SendReport struct {
	RouteID int64 `json:"route_id"`
}

func (SendReport) Kind() Kind { return KindSendReport }
func (SendReport) isPayload() {}

// PendingAction is an action that has not been confirmed by the server.
// Actions are never modified after creation.
type PendingAction struct {
	ID        string
	Payload   Payload
	CreatedAt time.Time
}

// Kind returns the payload kind.
func (a PendingAction) Kind() Kind {
	if a.Payload == nil {
		return ""
	}
	return a.Payload.Kind()
}

// String renders a short description for logs and the CLI.
func (a PendingAction) String() string {
	switch p := a.Payload.(type) {
	case CompletePoint:
		return fmt.Sprintf("complete point %d (%d leaflets)", p.PointID, p.Leaflets)
	case SendReport:
		return fmt.Sprintf("send report for route %d", p.RouteID)
	default:
		return fmt.Sprintf("unknown action %q", a.Kind())
	}
}

type envelope struct {
	ID        string          `json:"id"`
	Type      Kind            `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// MarshalJSON writes the action as {id, type, data, timestamp}.
func (a PendingAction) MarshalJSON() ([]byte, error) {
	if a.Payload == nil {
		return nil, fmt.Errorf("action %s has no payload", a.ID)
	}
	data, err := json.Marshal(a.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", a.Kind(), err)
	}
	return json.Marshal(envelope{
		ID:        a.ID,
		Type:      a.Kind(),
		Data:      data,
		Timestamp: a.CreatedAt.UnixMilli(),
	})
}

// UnmarshalJSON decodes the envelope and the kind-specific payload.
func (a *PendingAction) UnmarshalJSON(b []byte) error {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	var payload Payload
	switch env.Type {
	case KindCompletePoint:
		var p CompletePoint
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
		payload = p
	case KindSendReport:
		var p SendReport
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
		payload = p
	default:
		return fmt.Errorf("unknown action type %q", env.Type)
	}
	*a = PendingAction{
		ID:        env.ID,
		Payload:   payload,
		CreatedAt: time.UnixMilli(env.Timestamp),
	}
	return nil
}
