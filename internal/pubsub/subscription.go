package pubsub

import (
	"sync"

	"github.com/google/uuid"
)

// Subscription is one subscriber's view of a broker.
// Events arrive on C in publish order. When the stream terminates, C is
// closed and Err reports why: nil for a clean close (Unsubscribe, Close,
// context cancel) or ErrSlowSubscriber for an eviction.
type Subscription[T any] struct {
	id     uuid.UUID
	broker *Broker[T]

	mu    sync.Mutex
	queue []T
	err   error
	dead  bool

	wake chan struct{}
	done chan struct{}
	out  chan T

	closeOnce sync.Once

	// C delivers the event stream.
	C <-chan T
}

func newSubscription[T any](b *Broker[T]) *Subscription[T] {
	out := make(chan T)
	return &Subscription[T]{
		id:     uuid.New(),
		broker: b,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    out,
		C:      out,
	}
}

// ID returns the subscription's unique identifier.
func (s *Subscription[T]) ID() uuid.UUID {
	return s.id
}

// Err reports why the stream terminated. It is nil while the stream is
// live and after a clean close.
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close terminates the subscription and releases its queue.
// Closing twice, or closing an already-terminated subscription, is a no-op.
func (s *Subscription[T]) Close() {
	s.broker.Unsubscribe(s.id)
}

// enqueue appends an event to the backlog. It reports true when the
// append pushed the backlog past limit, in which case the subscription
// has been terminated with ErrSlowSubscriber and the caller must drop it.
func (s *Subscription[T]) enqueue(event T, limit int) (evicted bool) {
	s.mu.Lock()
	if s.dead {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, event)
	if len(s.queue) > limit {
		s.mu.Unlock()
		s.terminate(ErrSlowSubscriber)
		return true
	}
	s.mu.Unlock()
	s.signal()
	return false
}

// signal nudges the pump without blocking.
func (s *Subscription[T]) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// terminate marks the stream finished with the given reason and stops the
// pump. Idempotent; the first reason wins.
func (s *Subscription[T]) terminate(reason error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.dead = true
		s.err = reason
		s.queue = nil
		s.mu.Unlock()
		close(s.done)
	})
}

// pump drains the backlog into the out channel in FIFO order.
// It exits, closing out, when the subscription terminates; undelivered
// backlog is discarded at that point.
func (s *Subscription[T]) pump() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
			for {
				s.mu.Lock()
				batch := s.queue
				s.queue = nil
				s.mu.Unlock()
				if len(batch) == 0 {
					break
				}
				for _, event := range batch {
					select {
					case s.out <- event:
					case <-s.done:
						return
					}
				}
			}
		}
	}
}
