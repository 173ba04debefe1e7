// Package pubsub provides a generic publish/subscribe event broker.
//
// Delivery contract: each subscriber owns an unbounded FIFO queue drained
// by its own pump goroutine, so publishers never block on a slow consumer
// and every subscriber observes events in publish order. A subscriber
// whose backlog grows past the broker's queue limit is evicted and its
// stream terminates with ErrSlowSubscriber.
package pubsub

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// DefaultQueueLimit is the backlog size at which a subscriber is evicted.
const DefaultQueueLimit = 65536

// ErrSlowSubscriber marks a subscription terminated because its backlog
// exceeded the broker's queue limit.
var ErrSlowSubscriber = errors.New("pubsub: subscriber evicted, queue limit exceeded")

// ErrBrokerClosed marks a subscription created against a closed broker.
var ErrBrokerClosed = errors.New("pubsub: broker closed")

// Broker is a generic pub/sub event broker.
// It allows multiple subscribers to receive events published by publishers.
type Broker[T any] struct {
	mu         sync.RWMutex
	subs       map[uuid.UUID]*Subscription[T]
	closed     bool
	queueLimit int
}

// NewBroker creates a new broker with the default queue limit.
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithLimit[T](DefaultQueueLimit)
}

// NewBrokerWithLimit creates a new broker with a custom eviction limit.
func NewBrokerWithLimit[T any](limit int) *Broker[T] {
	if limit < 1 {
		limit = 1
	}
	return &Broker[T]{
		subs:       make(map[uuid.UUID]*Subscription[T]),
		queueLimit: limit,
	}
}

// Subscribe creates a new subscription.
// The subscription is automatically closed when ctx is cancelled.
// A subscriber sees only events published strictly after Subscribe returns.
func (b *Broker[T]) Subscribe(ctx context.Context) *Subscription[T] {
	return b.SubscribeSeeded(ctx, nil)
}

// SubscribeSeeded creates a new subscription whose first delivered events
// are the ones returned by seed. The seed function runs while publishers
// are held out, so the seeded events are consistent with the subscription
// point: everything published after SubscribeSeeded returns is delivered
// after the seed events, in publish order.
func (b *Broker[T]) SubscribeSeeded(ctx context.Context, seed func() []T) *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := newSubscription[T](b)
	if b.closed {
		sub.terminate(ErrBrokerClosed)
		close(sub.out)
		return sub
	}

	if seed != nil {
		sub.queue = append(sub.queue, seed()...)
		sub.signal()
	}
	b.subs[sub.id] = sub
	go sub.pump()

	// Cleanup when the caller's context ends.
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				b.Unsubscribe(sub.id)
			case <-sub.done:
			}
		}()
	}

	return sub
}

// Publish appends event to every live subscriber's queue.
// It never fails and never blocks on an individual subscriber. Publishers
// are serialized so all subscribers observe the same publish order.
func (b *Broker[T]) Publish(event T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for id, sub := range b.subs {
		if evicted := sub.enqueue(event, b.queueLimit); evicted {
			delete(b.subs, id)
		}
	}
}

// Unsubscribe drops the subscriber's queue and terminates its stream.
// Unsubscribing an unknown or already-terminated id is a no-op.
func (b *Broker[T]) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	sub.terminate(nil)
}

// Close shuts down the broker and terminates all subscriptions cleanly.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		sub.terminate(nil)
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
