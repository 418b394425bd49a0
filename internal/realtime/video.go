package realtime

import (
	"context"
	"log/slog"

	"github.com/pliu/chatcore/internal/events"
	"github.com/pliu/chatcore/internal/store"
)

// VideoTeardown ends the open video session of a deleted room.
type VideoTeardown struct {
	sessions store.VideoSessions
	log      *slog.Logger
}

func NewVideoTeardown(sessions store.VideoSessions, log *slog.Logger) *VideoTeardown {
	return &VideoTeardown{sessions: sessions, log: log}
}

func (v *VideoTeardown) Handle(ctx context.Context, evt events.Event) error {
	if evt.Kind != events.RoomDeleted {
		return nil
	}
	if err := v.sessions.EndActiveSession(ctx, evt.RoomID, evt.ActorID); err != nil {
		return err
	}
	v.log.Info("Ended video session for deleted room", "room_id", evt.RoomID, "ended_by", evt.ActorID)
	return nil
}
