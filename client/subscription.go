// ABOUTME: Per-conversation Subscription owning a set of per-turn listeners
// ABOUTME: Registration and removal are explicit lifecycle operations

package client

import (
	"sort"
	"sync"

	"github.com/chatrelay/chatrelay/internal/wire"
)

// Subscription is the long-lived handle for one conversation's channel.
// It owns zero or more Listener registrations, one per in-flight turn.
// Listeners come and go per turn without tearing the subscription down.
type Subscription struct {
	channel string

	mu        sync.Mutex
	nextID    int
	listeners map[int]listener
}

type listener struct {
	fn      func(wire.Event)
	onClose func()
}

func newSubscription(channel string) *Subscription {
	return &Subscription{
		channel:   channel,
		listeners: make(map[int]listener),
	}
}

// Channel returns the broker channel this subscription covers.
func (s *Subscription) Channel() string {
	return s.channel
}

// AddListener registers fn for every event arriving on the channel and
// returns a handle for removal. fn is invoked serially, in arrival
// order, from the connection's read loop.
func (s *Subscription) AddListener(fn func(wire.Event)) int {
	return s.addListener(fn, nil)
}

// addListener also accepts an onClose hook invoked if the whole
// subscription is torn down while the listener is still registered.
func (s *Subscription) addListener(fn func(wire.Event), onClose func()) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = listener{fn: fn, onClose: onClose}
	return id
}

// RemoveListener deregisters a handle. Removing an already-removed or
// unknown handle is a no-op.
func (s *Subscription) RemoveListener(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, id)
}

// ListenerCount reports the number of active listeners.
func (s *Subscription) ListenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// dispatch delivers one event to every registered listener. The
// snapshot is taken under the lock but listeners run outside it, so a
// listener may remove itself (or others) during delivery.
func (s *Subscription) dispatch(ev wire.Event) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(wire.Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.listeners[id].fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// close drops all listeners and cancels any stream still attached.
// Used by Client.Close.
func (s *Subscription) close() {
	s.mu.Lock()
	dropped := s.listeners
	s.listeners = make(map[int]listener)
	s.mu.Unlock()

	for _, l := range dropped {
		if l.onClose != nil {
			l.onClose()
		}
	}
}
