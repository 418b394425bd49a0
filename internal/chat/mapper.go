package chat

import (
	"context"
	"slices"

	"github.com/pliu/chatcore/internal/models"
	"github.com/samber/lo"
)

const unknownPeer = "Unknown"

// RoomView builds the caller-scoped view of room.
func (s *Service) RoomView(ctx context.Context, callerID string, room *models.Room) (models.RoomView, error) {
	unread, err := s.store.CountUnread(ctx, room.ID, callerID)
	if err != nil {
		return models.RoomView{}, err
	}
	last, err := s.store.LastMessage(ctx, room.ID)
	if err != nil {
		return models.RoomView{}, err
	}

	view := models.RoomView{
		ID:          room.ID,
		Name:        displayName(room, callerID),
		IsGroup:     room.IsGroup(),
		OwnerID:     room.OwnerID,
		MemberIDs:   slices.Clone(room.MemberIDs),
		CreatedAt:   room.CreatedAt,
		UnreadCount: unread,
		CanRename:   room.IsGroup() && room.IsOwner(callerID),
		CanDelete:   room.IsOwner(callerID),
	}
	if last != nil {
		view.LastMessagePreview = preview(last)
		sentAt := last.SentAt
		view.LastMessageTime = &sentAt
	}
	return view, nil
}

func displayName(room *models.Room, callerID string) string {
	if room.IsGroup() {
		return room.Name
	}
	if peer := room.Peer(callerID); peer != "" {
		return peer
	}
	return unknownPeer
}

func preview(m *models.Message) string {
	if m.Content != "" {
		return m.Content
	}
	if m.Attachment != nil && m.Attachment.FileName != "" {
		return m.Attachment.FileName
	}
	switch m.Type {
	case models.TypeImage:
		return "[image]"
	case models.TypeFile:
		return "[file]"
	}
	return ""
}

// sortRoomViews orders by last message time, newest first. Rooms without
// messages go last; ties fall back to creation time, newest first.
func sortRoomViews(views []models.RoomView) {
	slices.SortStableFunc(views, func(a, b models.RoomView) int {
		switch {
		case a.LastMessageTime == nil && b.LastMessageTime != nil:
			return 1
		case a.LastMessageTime != nil && b.LastMessageTime == nil:
			return -1
		case a.LastMessageTime != nil && !a.LastMessageTime.Equal(*b.LastMessageTime):
			return b.LastMessageTime.Compare(*a.LastMessageTime)
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}

// MessageView maps a stored message. Receipt counts are only exposed when
// receipts are tracked per recipient.
func (s *Service) MessageView(m models.Message) models.MessageView {
	view := models.MessageView{
		ID:              m.ID,
		ClientMessageID: m.ClientMessageID,
		RoomID:          m.RoomID,
		SenderID:        m.SenderID,
		Content:         m.Content,
		Attachment:      m.Attachment,
		Type:            m.Type,
		Status:          m.Status(),
		SentAt:          m.SentAt,
		Delivered:       m.Delivered,
		DeliveredAt:     m.DeliveredAt,
		Read:            m.Read,
		ReadAt:          m.ReadAt,
	}
	if s.receiptMode == models.ReceiptsPerRecipient {
		view.DeliveredTo = lo.ToPtr(m.DeliveredTo)
		view.ReadBy = lo.ToPtr(m.ReadBy)
	}
	return view
}

func (s *Service) messageViews(messages []models.Message) []models.MessageView {
	return lo.Map(messages, func(m models.Message, _ int) models.MessageView { return s.MessageView(m) })
}
