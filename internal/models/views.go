package models

import "time"

// RoomView is a room as seen by one caller.
type RoomView struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	IsGroup            bool       `json:"isGroup"`
	OwnerID            string     `json:"ownerId"`
	MemberIDs          []string   `json:"memberIds"`
	CreatedAt          time.Time  `json:"createdAt"`
	UnreadCount        int64      `json:"unreadCount"`
	CanRename          bool       `json:"canRename"`
	CanDelete          bool       `json:"canDelete"`
	LastMessagePreview string     `json:"lastMessagePreview,omitempty"`
	LastMessageTime    *time.Time `json:"lastMessageTime,omitempty"`
}

type MessageView struct {
	ID              string      `json:"id"`
	ClientMessageID string      `json:"clientMessageId,omitempty"`
	RoomID          string      `json:"roomId"`
	SenderID        string      `json:"senderId"`
	Content         string      `json:"content"`
	Attachment      *Attachment `json:"attachment,omitempty"`
	Type            MessageType `json:"type"`
	Status          string      `json:"status"`
	SentAt          time.Time   `json:"sentAt"`
	Delivered       bool        `json:"delivered"`
	DeliveredAt     *time.Time  `json:"deliveredAt,omitempty"`
	Read            bool        `json:"read"`
	ReadAt          *time.Time  `json:"readAt,omitempty"`
	DeliveredTo     *int        `json:"deliveredTo,omitempty"`
	ReadBy          *int        `json:"readBy,omitempty"`
}
