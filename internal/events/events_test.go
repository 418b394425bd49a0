package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pliu/chatcore/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Handle(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestQueueDispatchesToEveryHandler(t *testing.T) {
	q := NewQueue(discardLogger(), 8, 1, 0)
	first, second := &recorder{}, &recorder{}
	q.Subscribe(first, second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	require.True(t, q.Enqueue(Event{Kind: MessageSent, RoomID: "r1"}))
	require.True(t, q.Enqueue(Event{Kind: RoomDeleted, RoomID: "r1"}))

	require.Eventually(t, func() bool { return first.Len() == 2 && second.Len() == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, MessageSent, first.events[0].Kind)
	require.Equal(t, RoomDeleted, first.events[1].Kind)
}

func TestQueueDropsWhenFull(t *testing.T) {
	q := NewQueue(discardLogger(), 1, 1, 0)
	before := testutil.ToFloat64(metrics.EventsDropped.WithLabelValues(string(MessageDeleted)))

	require.True(t, q.Enqueue(Event{Kind: MessageDeleted}))
	require.False(t, q.Enqueue(Event{Kind: MessageDeleted}))

	after := testutil.ToFloat64(metrics.EventsDropped.WithLabelValues(string(MessageDeleted)))
	require.Equal(t, before+1, after)
}

func TestQueueRetriesThenGivesUp(t *testing.T) {
	q := NewQueue(discardLogger(), 4, 3, time.Millisecond)
	var calls atomic.Int32
	q.Subscribe(HandlerFunc(func(context.Context, Event) error {
		calls.Add(1)
		return errors.New("transport down")
	}))
	after := &recorder{}
	q.Subscribe(after)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Enqueue(Event{Kind: MessageSent})
	require.Eventually(t, func() bool { return after.Len() == 1 }, time.Second, 5*time.Millisecond)
	require.EqualValues(t, 3, calls.Load())
}

func TestQueueRecoversHandlerPanic(t *testing.T) {
	q := NewQueue(discardLogger(), 4, 1, 0)
	q.Subscribe(HandlerFunc(func(context.Context, Event) error { panic("boom") }))
	after := &recorder{}
	q.Subscribe(after)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Enqueue(Event{Kind: MessageSent})
	require.Eventually(t, func() bool { return after.Len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestQueueDrainsOnShutdown(t *testing.T) {
	q := NewQueue(discardLogger(), 4, 1, 0)
	rec := &recorder{}
	q.Subscribe(rec)

	q.Enqueue(Event{Kind: MessageSent})
	q.Enqueue(Event{Kind: MessageSent})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q.Run(ctx)

	require.Equal(t, 2, rec.Len())
}
