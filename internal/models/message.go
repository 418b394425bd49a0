package models

import (
	"strings"
	"time"
)

type MessageType string

const (
	TypeText   MessageType = "TEXT"
	TypeImage  MessageType = "IMAGE"
	TypeFile   MessageType = "FILE"
	TypeSystem MessageType = "SYSTEM"
)

// Attachment is an opaque pointer into the blob store.
type Attachment struct {
	URL      string `json:"url,omitempty"`
	FileID   string `json:"fileId,omitempty"`
	FileName string `json:"fileName,omitempty"`
	FileSize int64  `json:"fileSize,omitempty"`
	FileType string `json:"fileType,omitempty"`
}

func (a *Attachment) IsEmpty() bool {
	return a == nil || (a.URL == "" && a.FileID == "")
}

// TypeFor derives the message type from what was attached.
func TypeFor(a *Attachment) MessageType {
	switch {
	case a.IsEmpty():
		return TypeText
	case a.FileID != "":
		return TypeFile
	default:
		return TypeImage
	}
}

type Message struct {
	ID              string
	ClientMessageID string
	RoomID          string
	SenderID        string
	Content         string
	Attachment      *Attachment
	Type            MessageType
	SentAt          time.Time
	Delivered       bool
	DeliveredAt     *time.Time
	Read            bool
	ReadAt          *time.Time
	Deleted         bool
	DeletedAt       *time.Time

	// Only populated under ReceiptsPerRecipient.
	DeliveredTo int
	ReadBy      int
}

// Status is the coarse state shown to clients.
func (m Message) Status() string {
	switch {
	case m.Read:
		return "read"
	case m.Delivered:
		return "delivered"
	default:
		return "sent"
	}
}

// ReceiptMode selects how delivery and read state is tracked.
type ReceiptMode string

const (
	// ReceiptsPerMessage keeps one delivered/read flag per message; the first
	// non-sender to fetch or read flips it for everyone.
	ReceiptsPerMessage ReceiptMode = "message"
	// ReceiptsPerRecipient records receipts per (message, recipient) and
	// derives the message flags as "by every other member".
	ReceiptsPerRecipient ReceiptMode = "recipient"
)

func ParseReceiptMode(s string) (ReceiptMode, bool) {
	switch ReceiptMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ReceiptsPerMessage:
		return ReceiptsPerMessage, true
	case ReceiptsPerRecipient:
		return ReceiptsPerRecipient, true
	}
	return "", false
}
