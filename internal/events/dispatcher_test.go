package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	mu      sync.Mutex
	dropped map[EventType]int
	failed  map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{dropped: map[EventType]int{}, failed: map[string]int{}}
}

func (r *countingRecorder) EventDropped(t EventType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped[t]++
}

func (r *countingRecorder) HandlerFailed(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[name]++
}

func (r *countingRecorder) failures(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed[name]
}

func TestAsyncDispatcher_DeliversToSubscribers(t *testing.T) {
	d := NewAsyncDispatcher(AsyncOptions{Workers: 2, QueueSize: 8})
	received := make(chan Event, 2)
	d.Subscribe(EventTicketCreated, "first", func(_ context.Context, e Event) error {
		received <- e
		return nil
	})
	d.Subscribe(EventTicketCreated, "second", func(_ context.Context, e Event) error {
		received <- e
		return nil
	})
	d.Start()

	require.NoError(t, d.Publish(context.Background(), Event{ID: "evt-1", Type: EventTicketCreated}))
	require.NoError(t, d.Stop(context.Background()))

	close(received)
	var ids []string
	for e := range received {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"evt-1", "evt-1"}, ids)
}

func TestAsyncDispatcher_HandlerContextOutlivesRequest(t *testing.T) {
	d := NewAsyncDispatcher(AsyncOptions{Workers: 1, QueueSize: 1, HandlerTimeout: time.Second})
	errs := make(chan error, 1)
	d.Subscribe(EventTicketUpdated, "ctx", func(ctx context.Context, _ Event) error {
		errs <- ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Publish(ctx, Event{Type: EventTicketUpdated}))
	cancel()

	d.Start()
	require.NoError(t, d.Stop(context.Background()))
	assert.NoError(t, <-errs)
}

func TestAsyncDispatcher_PublishNeverBlocksWhenFull(t *testing.T) {
	rec := newCountingRecorder()
	d := NewAsyncDispatcher(AsyncOptions{Workers: 1, QueueSize: 1, Recorder: rec})

	// workers are not started, so the second event cannot be queued
	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketRated}))
	err := d.Publish(context.Background(), Event{Type: EventTicketRated})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, rec.dropped[EventTicketRated])
}

func TestAsyncDispatcher_FailuresAndPanicsAreContained(t *testing.T) {
	rec := newCountingRecorder()
	d := NewAsyncDispatcher(AsyncOptions{Workers: 1, QueueSize: 4, Recorder: rec})

	delivered := make(chan struct{}, 1)
	d.Subscribe(EventTicketStatusChanged, "failing", func(context.Context, Event) error {
		return errors.New("sink unavailable")
	})
	d.Subscribe(EventTicketStatusChanged, "panicking", func(context.Context, Event) error {
		panic("boom")
	})
	d.Subscribe(EventTicketStatusChanged, "healthy", func(context.Context, Event) error {
		delivered <- struct{}{}
		return nil
	})
	d.Start()

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketStatusChanged}))
	require.NoError(t, d.Stop(context.Background()))

	assert.Len(t, delivered, 1)
	assert.Equal(t, 1, rec.failures("failing"))
	assert.Equal(t, 1, rec.failures("panicking"))
	assert.Equal(t, 0, rec.failures("healthy"))
}

func TestAsyncDispatcher_HandlerTimeout(t *testing.T) {
	d := NewAsyncDispatcher(AsyncOptions{Workers: 1, QueueSize: 1, HandlerTimeout: 20 * time.Millisecond})
	errs := make(chan error, 1)
	d.Subscribe(EventGamificationAward, "slow", func(ctx context.Context, _ Event) error {
		<-ctx.Done()
		errs <- ctx.Err()
		return ctx.Err()
	})
	d.Start()

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventGamificationAward}))
	require.NoError(t, d.Stop(context.Background()))
	assert.ErrorIs(t, <-errs, context.DeadlineExceeded)
}

func TestAsyncDispatcher_PublishAfterStop(t *testing.T) {
	d := NewAsyncDispatcher(AsyncOptions{})
	d.Start()
	require.NoError(t, d.Stop(context.Background()))
	assert.ErrorIs(t, d.Publish(context.Background(), Event{Type: EventTicketCreated}), ErrDispatcherStopped)
}
