// Package realtime turns queued chat events into payloads on room-scoped
// channels. Delivery is best effort: the store is the source of truth and a
// channel message is only a hint for clients to refetch.
package realtime

//go:generate go run go.uber.org/mock/mockgen -destination=../mocks/mock_publisher.go -package=mocks github.com/pliu/chatcore/internal/realtime Publisher

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pliu/chatcore/internal/events"
	"github.com/pliu/chatcore/internal/metrics"
)

const (
	EventMessage = "message"
	EventStatus  = "status"
)

// Publisher is the realtime channel contract; at-most-once.
type Publisher interface {
	Publish(ctx context.Context, channel, event string, payload any) error
}

func ContentChannel(roomID string) string { return "chat-" + roomID }

func StatusChannel(roomID string) string { return "status-" + roomID }

// MessagePayload is what subscribers of the content channel receive.
type MessagePayload struct {
	ID              string `json:"id"`
	Content         string `json:"content"`
	SenderID        string `json:"senderId"`
	TimestampMillis int64  `json:"timestamp"`
	Status          string `json:"status"`
	Type            string `json:"type"`
}

// StatusPayload describes a non-content room event.
type StatusPayload struct {
	Action       events.Kind `json:"action"`
	RoomID       string      `json:"roomId"`
	MessageID    string      `json:"messageId,omitempty"`
	DeletedBy    string      `json:"deletedBy"`
	DeleteForAll *bool       `json:"deleteForAll,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// Fanout is an events.Handler publishing to the realtime transport.
type Fanout struct {
	publisher Publisher
	log       *slog.Logger
}

func NewFanout(publisher Publisher, log *slog.Logger) *Fanout {
	return &Fanout{publisher: publisher, log: log}
}

func (f *Fanout) Handle(ctx context.Context, evt events.Event) error {
	channel, event, payload, ok := f.payloadFor(evt)
	if !ok {
		return nil
	}
	if err := f.publisher.Publish(ctx, channel, event, payload); err != nil {
		return err
	}
	metrics.RealtimePublished.WithLabelValues(event).Inc()
	f.log.Debug("Published realtime event", "channel", channel, "event", event)
	return nil
}

func (f *Fanout) payloadFor(evt events.Event) (string, string, any, bool) {
	switch evt.Kind {
	case events.MessageSent:
		if evt.Message == nil {
			return "", "", nil, false
		}
		m := evt.Message
		return ContentChannel(evt.RoomID), EventMessage, MessagePayload{
			ID:              m.ID,
			Content:         m.Content,
			SenderID:        m.SenderID,
			TimestampMillis: m.SentAt.UnixMilli(),
			Status:          "sent",
			Type:            strings.ToLower(string(m.Type)),
		}, true
	case events.MessageDeleted:
		forAll := evt.DeleteForAll
		return StatusChannel(evt.RoomID), EventStatus, StatusPayload{
			Action:       events.MessageDeleted,
			RoomID:       evt.RoomID,
			MessageID:    evt.MessageID,
			DeletedBy:    evt.ActorID,
			DeleteForAll: &forAll,
			Timestamp:    evt.At,
		}, true
	case events.RoomDeleted:
		return StatusChannel(evt.RoomID), EventStatus, StatusPayload{
			Action:    events.RoomDeleted,
			RoomID:    evt.RoomID,
			DeletedBy: evt.ActorID,
			Timestamp: evt.At,
		}, true
	}
	return "", "", nil, false
}
