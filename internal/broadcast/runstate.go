// Package broadcast implements the server-wide run-state signal.  The
// acceptor, every live session and the in-band shutdown command all
// observe one RunState; publishing false cascades a graceful shutdown.
package broadcast

import "sync"

// Observer receives every published run-state value.  Observers run on
// the publisher's goroutine and must not call Publish themselves.
type Observer func(running bool)

type subscription struct {
	id uint64
	fn Observer
}

// RunState is a single boolean plus an ordered observer list.  The zero
// value is ready to use and reports not-running until the first
// Publish.
type RunState struct {
	// publishMu serialises Publish calls so that every observer sees
	// values in the order they were pushed.
	publishMu sync.Mutex

	mu        sync.Mutex
	value     bool
	published bool
	nextID    uint64
	observers []subscription
}

// New returns an empty RunState.
func New() *RunState { return &RunState{} }

// Publish stores running and notifies every current observer
// synchronously, in subscription order.
func (s *RunState) Publish(running bool) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	s.value = running
	s.published = true
	observers := make([]subscription, len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, o := range observers {
		o.fn(running)
	}
}

// Subscribe registers fn and, if a value has been published, delivers
// it immediately.  The returned function removes the observer; calling
// it more than once is harmless.
func (s *RunState) Subscribe(fn Observer) (unsubscribe func()) {
	// Holding publishMu keeps the initial delivery ordered with respect
	// to concurrent publishes.
	s.publishMu.Lock()
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.observers = append(s.observers, subscription{id: id, fn: fn})
	value, published := s.value, s.published
	s.mu.Unlock()

	if published {
		fn(value)
	}
	s.publishMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *RunState) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range s.observers {
		if o.id == id {
			s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
			return
		}
	}
}

// Running reports the last published value.
func (s *RunState) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Observers returns the number of registered observers.
func (s *RunState) Observers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}
