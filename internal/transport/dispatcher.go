package transport

import (
	"context"
	"sync"

	"github.com/zjrosen/warden/internal/log"
)

// Handler consumes dispatched frames. HandleFrame runs on the dispatcher
// goroutine, one frame at a time, in push order; a slow handler delays
// later frames but never the pusher.
type Handler interface {
	HandleFrame(ctx context.Context, frame Frame)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, frame Frame)

// HandleFrame calls f.
func (f HandlerFunc) HandleFrame(ctx context.Context, frame Frame) {
	f(ctx, frame)
}

// Dispatcher decouples frame producers from the engine. Push appends to
// an unbounded backlog and returns immediately; a single goroutine,
// started by Start, drains the backlog and invokes the handler.
type Dispatcher struct {
	handler Handler

	mu      sync.Mutex
	queue   []Frame
	stopped bool

	wake chan struct{}
	done chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewDispatcher creates a dispatcher feeding handler.
func NewDispatcher(handler Handler) *Dispatcher {
	return &Dispatcher{
		handler: handler,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start brings up the dispatch loop. Frames pushed before Start are
// delivered once the loop is running. The loop exits when ctx is
// cancelled or Stop is called; undelivered backlog is discarded at that
// point. Calling Start more than once is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		log.SafeGo("transport-dispatcher", func() {
			d.run(ctx)
		})
	})
}

// Push enqueues a frame for dispatch. It never blocks. Frames pushed
// after the dispatcher stops are dropped.
func (d *Dispatcher) Push(frame Frame) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, frame)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Stop terminates the dispatch loop and drops any queued frames.
// Safe to call more than once and before Start.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		d.queue = nil
		d.mu.Unlock()
		close(d.done)
	})
}

// Pending returns the number of frames queued but not yet handed to the
// handler.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.Stop()
	log.Debug(log.CatTransport, "dispatcher started")
	for {
		select {
		case <-ctx.Done():
			log.Debug(log.CatTransport, "dispatcher stopped", "reason", "context cancelled")
			return
		case <-d.done:
			log.Debug(log.CatTransport, "dispatcher stopped", "reason", "stop requested")
			return
		case <-d.wake:
			for {
				d.mu.Lock()
				batch := d.queue
				d.queue = nil
				d.mu.Unlock()
				if len(batch) == 0 {
					break
				}
				for _, frame := range batch {
					select {
					case <-ctx.Done():
						return
					case <-d.done:
						return
					default:
					}
					d.handler.HandleFrame(ctx, frame)
				}
			}
		}
	}
}
