package connectivity

import "sync"

// Event is a connectivity transition.
type Event int

const (
	WentOffline Event = iota
	WentOnline
)

func (e Event) String() string {
	if e == WentOnline {
		return "online"
	}
	return "offline"
}

// Oracle reports best-known reachability. Online is advisory: requests may
// still fail while it reports true.
type Oracle interface {
	IsOnline() bool
	// Subscribe returns a channel of transitions and a function that ends
	// the subscription. Events are only emitted when the state changes.
	Subscribe() (<-chan Event, func())
}

// notifier tracks the current state and fans transitions out to subscribers.
// Each subscriber channel holds one event; a slow subscriber sees the latest
// transition rather than blocking the publisher.
type notifier struct {
	mu     sync.Mutex
	online bool
	next   int
	subs   map[int]chan Event
}

func (n *notifier) IsOnline() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online
}

func (n *notifier) Subscribe() (<-chan Event, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]chan Event)
	}
	id := n.next
	n.next++
	ch := make(chan Event, 1)
	n.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// set records the state and reports whether it changed.
func (n *notifier) set(online bool) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.online == online {
		return false
	}
	n.online = online
	ev := WentOffline
	if online {
		ev = WentOnline
	}
	for _, ch := range n.subs {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
	return true
}

// Manual is an Oracle whose state is set by the caller.
type Manual struct {
	notifier
}

// NewManual returns a Manual oracle in the given state.
func NewManual(online bool) *Manual {
	m := &Manual{}
	m.online = online
	return m
}

// Set changes the state, emitting an event if it differs from the current one.
func (m *Manual) Set(online bool) {
	m.set(online)
}
