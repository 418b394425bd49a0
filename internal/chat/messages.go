package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/pliu/chatcore/internal/apperr"
	"github.com/pliu/chatcore/internal/events"
	"github.com/pliu/chatcore/internal/metrics"
	"github.com/pliu/chatcore/internal/models"
)

type SendRequest struct {
	Content         string             `json:"content" validate:"max=10000"`
	ClientMessageID string             `json:"clientMessageId" validate:"omitempty,max=128"`
	Attachment      *models.Attachment `json:"attachment"`
}

// SendMessage appends a message to a room the caller belongs to. A retry
// carrying the same client message id returns the stored message and is not
// fanned out again.
func (s *Service) SendMessage(ctx context.Context, callerID, roomID string, req SendRequest) (*models.MessageView, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Content) == "" && req.Attachment.IsEmpty() {
		return nil, apperr.Validation("message content or attachment is required")
	}
	callerID = NormalizeID(callerID)
	room, err := s.loadRoom(ctx, callerID, roomID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	msg := models.Message{
		ID:              s.newID(),
		ClientMessageID: strings.TrimSpace(req.ClientMessageID),
		RoomID:          room.ID,
		SenderID:        callerID,
		Content:         req.Content,
		Type:            models.TypeFor(req.Attachment),
		SentAt:          now,
		Delivered:       true,
		DeliveredAt:     &now,
	}
	if !req.Attachment.IsEmpty() {
		msg.Attachment = req.Attachment
	}

	saved, created, err := s.store.SaveMessage(ctx, msg)
	if err != nil {
		return nil, err
	}
	if created {
		metrics.MessagesSent.WithLabelValues(string(saved.Type)).Inc()
		s.enqueue(events.Event{Kind: events.MessageSent, RoomID: room.ID, Message: saved, ActorID: callerID, At: now})
	} else {
		s.log.Debug("Duplicate send ignored", "room_id", room.ID, "client_message_id", msg.ClientMessageID)
	}

	view := s.MessageView(*saved)
	return &view, nil
}

// GetMessages marks everything addressed to the caller as delivered, then
// returns the room's live messages oldest first.
func (s *Service) GetMessages(ctx context.Context, callerID, roomID string) ([]models.MessageView, error) {
	callerID = NormalizeID(callerID)
	room, err := s.loadRoom(ctx, callerID, roomID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.MarkAllDelivered(ctx, room.ID, callerID, s.now()); err != nil {
		return nil, err
	}
	messages, err := s.store.ActiveMessages(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	return s.messageViews(messages), nil
}

func (s *Service) SearchMessages(ctx context.Context, callerID, roomID, query string) ([]models.MessageView, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("search query is required")
	}
	callerID = NormalizeID(callerID)
	room, err := s.loadRoom(ctx, callerID, roomID)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.SearchMessages(ctx, room.ID, query)
	if err != nil {
		return nil, err
	}
	return s.messageViews(messages), nil
}

func (s *Service) MarkDelivered(ctx context.Context, callerID, roomID string) (int64, error) {
	callerID = NormalizeID(callerID)
	room, err := s.loadRoom(ctx, callerID, roomID)
	if err != nil {
		return 0, err
	}
	return s.store.MarkAllDelivered(ctx, room.ID, callerID, s.now())
}

func (s *Service) MarkRead(ctx context.Context, callerID, roomID string) (int64, error) {
	callerID = NormalizeID(callerID)
	room, err := s.loadRoom(ctx, callerID, roomID)
	if err != nil {
		return 0, err
	}
	return s.store.MarkAllRead(ctx, room.ID, callerID, s.now())
}

func (s *Service) CountUnread(ctx context.Context, callerID, roomID string) (int64, error) {
	callerID = NormalizeID(callerID)
	room, err := s.loadRoom(ctx, callerID, roomID)
	if err != nil {
		return 0, err
	}
	return s.store.CountUnread(ctx, room.ID, callerID)
}

// DeleteMessage soft-deletes a message. Without deleteForAll only the author
// may delete; with it any member of the room may. The timeline then gets a
// SYSTEM note and subscribers a status event.
func (s *Service) DeleteMessage(ctx context.Context, callerID, messageID string, deleteForAll bool) error {
	callerID = NormalizeID(callerID)
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.Deleted {
		return apperr.NotFound("message not found")
	}
	room, err := s.store.GetRoom(ctx, msg.RoomID)
	if err != nil {
		return err
	}

	now := s.now()
	var affected int64
	if deleteForAll {
		if err := s.guard.AssertMember(room, callerID); err != nil {
			return err
		}
		affected, err = s.store.DeleteMessageForAll(ctx, msg.ID, now)
	} else {
		if msg.SenderID != callerID {
			return apperr.Forbidden("you can only delete your own messages")
		}
		affected, err = s.store.DeleteMessageForSender(ctx, msg.ID, callerID, now)
	}
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.NotFound("message not found")
	}
	s.log.Info("Message deleted", "message_id", msg.ID, "room_id", room.ID, "by", callerID, "for_all", deleteForAll)

	note := fmt.Sprintf("%s deleted their message.", callerID)
	if deleteForAll {
		note = fmt.Sprintf("%s deleted a message for everyone.", callerID)
	}
	system := models.Message{
		ID:          s.newID(),
		RoomID:      room.ID,
		SenderID:    s.systemSender,
		Content:     note,
		Type:        models.TypeSystem,
		SentAt:      now,
		Delivered:   true,
		DeliveredAt: &now,
	}
	// The delete has committed; a missing note is not worth failing the call.
	if saved, created, err := s.store.SaveMessage(ctx, system); err != nil {
		s.log.Error("Failed to record deletion notice", "room_id", room.ID, "message_id", msg.ID, "error", err)
	} else if created {
		s.enqueue(events.Event{Kind: events.MessageSent, RoomID: room.ID, Message: saved, ActorID: s.systemSender, At: now})
	}

	s.enqueue(events.Event{
		Kind:         events.MessageDeleted,
		RoomID:       room.ID,
		MessageID:    msg.ID,
		ActorID:      callerID,
		DeleteForAll: deleteForAll,
		At:           now,
	})
	return nil
}
