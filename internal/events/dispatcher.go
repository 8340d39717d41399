package events

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned by Publish when the event was dropped.
	ErrQueueFull = errors.New("events: queue full")
	// ErrDispatcherStopped is returned by Publish after Stop.
	ErrDispatcherStopped = errors.New("events: dispatcher stopped")
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, name string, handler EventHandler)
}

// Recorder receives dispatcher outcomes for metrics.
type Recorder interface {
	EventDropped(eventType EventType)
	HandlerFailed(handler string)
}

type nopRecorder struct{}

func (nopRecorder) EventDropped(EventType) {}
func (nopRecorder) HandlerFailed(string)   {}

// AsyncOptions sizes an AsyncDispatcher.
type AsyncOptions struct {
	Workers        int
	QueueSize      int
	HandlerTimeout time.Duration
	Logger         *zap.Logger
	Recorder       Recorder
}

type subscription struct {
	name    string
	handler EventHandler
}

type queued struct {
	ctx   context.Context
	event Event
}

// AsyncDispatcher delivers events to subscribers on a bounded queue drained by a worker pool.
// Publish never blocks; handler failures are logged and counted, never returned to the publisher.
type AsyncDispatcher struct {
	opts AsyncOptions

	subMu     sync.RWMutex
	listeners map[EventType][]subscription

	queueMu sync.RWMutex
	queue   chan queued
	stopped bool

	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewAsyncDispatcher creates a dispatcher; call Start before publishing.
func NewAsyncDispatcher(opts AsyncOptions) *AsyncDispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	return &AsyncDispatcher{
		opts:      opts,
		listeners: make(map[EventType][]subscription),
		queue:     make(chan queued, opts.QueueSize),
	}
}

// Subscribe registers a handler for the given event type. name labels failures.
func (d *AsyncDispatcher) Subscribe(eventType EventType, name string, handler EventHandler) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], subscription{name: name, handler: handler})
}

// Publish enqueues the event without blocking. The request context is detached from its
// cancellation so handlers outlive the request but keep its values.
func (d *AsyncDispatcher) Publish(ctx context.Context, event Event) error {
	d.queueMu.RLock()
	defer d.queueMu.RUnlock()

	if d.stopped {
		return ErrDispatcherStopped
	}
	select {
	case d.queue <- queued{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	default:
		d.opts.Recorder.EventDropped(event.Type)
		return ErrQueueFull
	}
}

// QueueDepth reports how many events are waiting for a worker.
func (d *AsyncDispatcher) QueueDepth() int {
	return len(d.queue)
}

// Start launches the worker pool. It is safe to call more than once.
func (d *AsyncDispatcher) Start() {
	d.startOnce.Do(func() {
		for i := 0; i < d.opts.Workers; i++ {
			d.wg.Add(1)
			go d.work()
		}
		d.opts.Logger.Info("event dispatcher started",
			zap.Int("workers", d.opts.Workers),
			zap.Int("queue_size", d.opts.QueueSize))
	})
}

// Stop refuses new events and waits for queued ones to drain or ctx to expire.
func (d *AsyncDispatcher) Stop(ctx context.Context) error {
	d.queueMu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.queueMu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain event queue: %w", ctx.Err())
	}
}

func (d *AsyncDispatcher) work() {
	defer d.wg.Done()
	for item := range d.queue {
		d.subMu.RLock()
		subs := append([]subscription{}, d.listeners[item.event.Type]...)
		d.subMu.RUnlock()

		for _, sub := range subs {
			d.deliver(item, sub)
		}
	}
}

func (d *AsyncDispatcher) deliver(item queued, sub subscription) {
	ctx, cancel := context.WithTimeout(item.ctx, d.opts.HandlerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.opts.Recorder.HandlerFailed(sub.name)
			d.opts.Logger.Error("event handler panicked",
				zap.String("handler", sub.name),
				zap.String("event_type", string(item.event.Type)),
				zap.String("ticket_id", item.event.TicketID),
				zap.String("panic", fmt.Sprintf("%v", r)),
				zap.String("stack", string(debug.Stack())),
			)
		}
	}()

	if err := sub.handler(ctx, item.event); err != nil {
		d.opts.Recorder.HandlerFailed(sub.name)
		d.opts.Logger.Warn("event handler failed",
			zap.String("handler", sub.name),
			zap.String("event_type", string(item.event.Type)),
			zap.String("ticket_id", item.event.TicketID),
			zap.Error(err),
		)
	}
}
