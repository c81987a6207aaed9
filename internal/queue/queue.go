package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/five82/leafrun/internal/localstore"
)

// ErrUnreadable is returned when the persisted queue exists but cannot be
// read back. The stored blob is left untouched.
var ErrUnreadable = errors.New("pending queue unreadable")

// Manager is the persisted FIFO of pending actions.
//
// Each mutation reads, modifies and writes back the whole queue while holding
// the manager's lock, so concurrent callers never lose each other's updates.
// Records are stored as raw JSON; a record this build cannot decode is kept
// on disk and skipped by ListPending instead of being discarded.
type Manager struct {
	mu       sync.Mutex
	store    *localstore.Store
	logger   *zap.SugaredLogger
	now      func() time.Time
	newID    func() (string, error)
	observer func(depth int)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithObserver registers a callback invoked with the queue depth after every
// mutation.
func WithObserver(fn func(depth int)) Option {
	return func(m *Manager) {
		m.observer = fn
	}
}

// NewManager returns a Manager persisting into store.
func NewManager(store *localstore.Store, opts ...Option) *Manager {
	m := &Manager{
		store: store,
		now:   time.Now,
		newID: newActionID,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop().Sugar()
	}
	return m
}

// newActionID returns a UUIDv7: unique across calls in the same millisecond
// and lexically ordered by creation time.
func newActionID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

type record struct {
	id  string
	raw json.RawMessage
}

// readLocked returns the stored records. A missing queue is empty; a queue
// that cannot be read is an error so callers never write over it.
func (m *Manager) readLocked() ([]record, error) {
	var raws []json.RawMessage
	found, err := m.store.LoadErr(localstore.KeyPending, &raws)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	if !found {
		return nil, nil
	}
	out := make([]record, 0, len(raws))
	for _, raw := range raws {
		var head struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			m.logger.Warnw("unreadable pending record kept", "error", err)
		}
		out = append(out, record{id: head.ID, raw: raw})
	}
	return out, nil
}

func (m *Manager) writeLocked(records []record) {
	raws := make([]json.RawMessage, len(records))
	for i, r := range records {
		raws[i] = r.raw
	}
	m.store.Save(localstore.KeyPending, raws)
	if m.observer != nil {
		m.observer(len(records))
	}
}

// Enqueue appends a new action to the end of the queue and returns it.
func (m *Manager) Enqueue(payload Payload) (PendingAction, error) {
	if payload == nil {
		return PendingAction{}, fmt.Errorf("enqueue: nil payload")
	}
	id, err := m.newID()
	if err != nil {
		return PendingAction{}, fmt.Errorf("generate action id: %w", err)
	}
	action := PendingAction{ID: id, Payload: payload, CreatedAt: m.now()}
	raw, err := json.Marshal(action)
	if err != nil {
		return PendingAction{}, fmt.Errorf("encode action: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	records, err := m.readLocked()
	if err != nil {
		m.logger.Errorw("queue unreadable, action not stored", "kind", action.Kind(), "error", err)
		return PendingAction{}, fmt.Errorf("enqueue: %w", err)
	}
	records = append(records, record{id: id, raw: raw})
	m.writeLocked(records)

	m.logger.Infow("action queued", "id", id, "kind", action.Kind(), "depth", len(records))
	return action, nil
}

// ListPending returns the decodable actions in creation order.
func (m *Manager) ListPending() []PendingAction {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := m.readLocked()
	if err != nil {
		m.logger.Warnw("pending queue unreadable", "error", err)
		return nil
	}
	out := make([]PendingAction, 0, len(records))
	for _, r := range records {
		var a PendingAction
		if err := json.Unmarshal(r.raw, &a); err != nil {
			m.logger.Warnw("skipping undecodable pending action", "id", r.id, "error", err)
			continue
		}
		out = append(out, a)
	}
	return out
}

// Remove deletes the action with id. Removing an absent id is a no-op.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := m.readLocked()
	if err != nil {
		m.logger.Warnw("pending queue unreadable, action kept", "id", id, "error", err)
		return
	}
	kept := records[:0]
	for _, r := range records {
		if r.id != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(records) {
		return
	}
	m.writeLocked(kept)
	m.logger.Debugw("action removed", "id", id, "depth", len(kept))
}

// Clear empties the queue unconditionally by deleting the stored key, which
// also discards a queue that could not be read.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store.Delete(localstore.KeyPending)
	if m.observer != nil {
		m.observer(0)
	}
	m.logger.Infow("pending queue cleared")
}

// Len returns the number of stored records, decodable or not. An unreadable
// queue counts as zero.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	records, err := m.readLocked()
	if err != nil {
		m.logger.Warnw("pending queue unreadable", "error", err)
	}
	return len(records)
}

// HasPending reports whether any action waits for delivery.
func (m *Manager) HasPending() bool {
	return len(m.ListPending()) > 0
}
