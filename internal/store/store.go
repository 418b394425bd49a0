//go:generate go run go.uber.org/mock/mockgen -destination=../mocks/mock_collaborators.go -package=mocks github.com/pliu/chatcore/internal/store Contacts,VideoSessions
package store

import (
	"context"
	"time"

	"github.com/pliu/chatcore/internal/models"
)

type RoomStore interface {
	// CreateDirectRoom inserts a direct room, or returns the live room already
	// holding the same pair. The bool reports whether a row was inserted.
	CreateDirectRoom(ctx context.Context, room models.Room) (*models.Room, bool, error)
	FindDirectRoom(ctx context.Context, a, b string) (*models.Room, error)
	// FindOrCreateGroupRoom returns the oldest group owned by room.OwnerID
	// whose member set equals room.MemberIDs, inserting room if none exists.
	FindOrCreateGroupRoom(ctx context.Context, room models.Room) (*models.Room, bool, error)
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	ListRooms(ctx context.Context, memberID string, filter models.RoomFilter) ([]models.Room, error)
	RenameRoom(ctx context.Context, roomID, name string) error
	AddMembers(ctx context.Context, roomID string, memberIDs []string) (*models.Room, error)
	// DeleteRoom removes the room together with its messages, receipts and
	// memberships in a single transaction.
	DeleteRoom(ctx context.Context, roomID string) error
}

type MessageStore interface {
	// SaveMessage stores msg. A message with the same room, sender and client
	// message id is returned instead of inserting a second row; the bool
	// reports whether a row was inserted.
	SaveMessage(ctx context.Context, msg models.Message) (*models.Message, bool, error)
	GetMessage(ctx context.Context, messageID string) (*models.Message, error)
	ActiveMessages(ctx context.Context, roomID string) ([]models.Message, error)
	SearchMessages(ctx context.Context, roomID, query string) ([]models.Message, error)
	LastMessage(ctx context.Context, roomID string) (*models.Message, error)
	MarkAllDelivered(ctx context.Context, roomID, readerID string, at time.Time) (int64, error)
	MarkAllRead(ctx context.Context, roomID, readerID string, at time.Time) (int64, error)
	CountUnread(ctx context.Context, roomID, readerID string) (int64, error)
	DeleteMessageForSender(ctx context.Context, messageID, senderID string, at time.Time) (int64, error)
	DeleteMessageForAll(ctx context.Context, messageID string, at time.Time) (int64, error)
	DeleteAllForRoom(ctx context.Context, roomID string) error
}

// Contacts is the social-graph collaborator.
type Contacts interface {
	ContactsOf(ctx context.Context, accountID string) ([]string, error)
}

// VideoSessions is the video-session collaborator told about room deletion.
type VideoSessions interface {
	EndActiveSession(ctx context.Context, roomID, endedBy string) error
}

type Store interface {
	RoomStore
	MessageStore
}
