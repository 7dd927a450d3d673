// Package bus is a small in-process typed publish/subscribe hub.
//
// Each subscriber owns an unbounded queue drained by its own goroutine, so a
// slow subscriber never blocks Publish and events reach every subscriber in
// the order they were published.
package bus

import "sync"

// Bus fans out values of type T to all current subscribers.
// The zero value is not usable; call New.
type Bus[T any] struct {
	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	closed bool
}

// New creates an empty bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[*Subscription[T]]struct{})}
}

// Publish queues ev for every subscriber. Publishing on a closed bus is a no-op.
func (b *Bus[T]) Publish(ev T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		s.push(ev)
	}
}

// Subscribe registers a new subscriber. Events published before this call are not replayed.
// Caller must call Close() on the subscription when done.
func (b *Bus[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{
		events: make(chan T),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		quit:   make(chan struct{}),
		bus:    b,
	}
	go s.pump()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.stop()
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Close ends every subscription. Events already queued are still delivered
// before a subscription's channel closes. Subsequent subscriptions are closed
// immediately.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[*Subscription[T]]struct{})
	b.closed = true
	b.mu.Unlock()

	for s := range subs {
		s.stop()
	}
}

// Len returns the number of active subscribers.
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus[T]) remove(s *Subscription[T]) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// Subscription receives events published after it was created.
type Subscription[T any] struct {
	events chan T
	wake   chan struct{}
	bus    *Bus[T]

	// done is closed when the bus closes; queued events are still drained.
	// quit is closed by Close; queued events are dropped.
	done     chan struct{}
	quit     chan struct{}
	doneOnce sync.Once
	quitOnce sync.Once

	mu      sync.Mutex
	pending []T
}

// Events returns the channel of events. It is closed once the subscription or bus is closed.
func (s *Subscription[T]) Events() <-chan T {
	return s.events
}

// Close detaches the subscription from the bus and drops undelivered events.
// Safe to call multiple times.
func (s *Subscription[T]) Close() error {
	s.bus.remove(s)
	s.quitOnce.Do(func() { close(s.quit) })
	return nil
}

func (s *Subscription[T]) stop() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Subscription[T]) push(ev T) {
	s.mu.Lock()
	s.pending = append(s.pending, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) pump() {
	defer close(s.events)
	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, ev := range batch {
			select {
			case s.events <- ev:
			case <-s.quit:
				return
			}
		}

		select {
		case <-s.wake:
		case <-s.quit:
			return
		case <-s.done:
			// Publish stops before done closes, so pending only shrinks from here.
			s.mu.Lock()
			empty := len(s.pending) == 0
			s.mu.Unlock()
			if empty {
				return
			}
		}
	}
}
