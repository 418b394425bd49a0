// Package events is the post-commit outbox. Store writes commit first; the
// side effects that follow (realtime fanout, video-session teardown) are
// queued here and run by a single worker, so they never hold up or roll back
// the write that caused them.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pliu/chatcore/internal/metrics"
	"github.com/pliu/chatcore/internal/models"
)

type Kind string

const (
	MessageSent    Kind = "MESSAGE_SENT"
	MessageDeleted Kind = "MESSAGE_DELETED"
	RoomDeleted    Kind = "ROOM_DELETED"
)

type Event struct {
	Kind         Kind
	RoomID       string
	Message      *models.Message
	MessageID    string
	ActorID      string
	DeleteForAll bool
	At           time.Time
}

type Handler interface {
	Handle(ctx context.Context, evt Event) error
}

type HandlerFunc func(ctx context.Context, evt Event) error

func (f HandlerFunc) Handle(ctx context.Context, evt Event) error { return f(ctx, evt) }

// Publisher is what the chat service needs from the queue.
type Publisher interface {
	Enqueue(evt Event) bool
}

const drainTimeout = 5 * time.Second

type Queue struct {
	log         *slog.Logger
	events      chan Event
	maxAttempts int
	retryDelay  time.Duration

	mu       sync.RWMutex
	handlers []Handler
}

func NewQueue(log *slog.Logger, size, maxAttempts int, retryDelay time.Duration) *Queue {
	if size < 1 {
		size = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Queue{
		log:         log,
		events:      make(chan Event, size),
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
	}
}

func (q *Queue) Subscribe(handlers ...Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handlers...)
}

// Enqueue never blocks. A full queue drops the event; clients recover by
// refetching.
func (q *Queue) Enqueue(evt Event) bool {
	select {
	case q.events <- evt:
		metrics.EventsEnqueued.WithLabelValues(string(evt.Kind)).Inc()
		return true
	default:
		metrics.EventsDropped.WithLabelValues(string(evt.Kind)).Inc()
		q.log.Warn("Event queue full, dropping event", "kind", evt.Kind, "room_id", evt.RoomID)
		return false
	}
}

// Run dispatches events until ctx is cancelled, then drains what is left.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case evt := <-q.events:
			q.dispatch(ctx, evt)
		case <-ctx.Done():
			q.drain()
			return
		}
	}
}

func (q *Queue) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case evt := <-q.events:
			q.dispatch(ctx, evt)
		default:
			return
		}
	}
}

func (q *Queue) dispatch(ctx context.Context, evt Event) {
	q.mu.RLock()
	handlers := q.handlers
	q.mu.RUnlock()

	for _, h := range handlers {
		var err error
		for attempt := 1; attempt <= q.maxAttempts; attempt++ {
			if err = q.safeHandle(ctx, h, evt); err == nil {
				break
			}
			if attempt < q.maxAttempts {
				select {
				case <-time.After(q.retryDelay):
				case <-ctx.Done():
				}
			}
		}
		if err != nil {
			metrics.EventHandlerFailures.WithLabelValues(string(evt.Kind)).Inc()
			q.log.Error("Event handler failed", "kind", evt.Kind, "room_id", evt.RoomID, "attempts", q.maxAttempts, "error", err)
		}
	}
}

func (q *Queue) safeHandle(ctx context.Context, h Handler, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, evt)
}
