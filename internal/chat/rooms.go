package chat

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/pliu/chatcore/internal/apperr"
	"github.com/pliu/chatcore/internal/events"
	"github.com/pliu/chatcore/internal/models"
	"github.com/samber/lo"
)

type CreateGroupRequest struct {
	Name      string   `json:"name" validate:"required,max=200"`
	MemberIDs []string `json:"memberIds" validate:"required,min=1,dive,required"`
}

// CreateRoomRequest opens either kind of room; a direct room uses the first
// member id as the peer.
type CreateRoomRequest struct {
	IsGroup   bool     `json:"isGroup"`
	Name      string   `json:"name" validate:"max=200"`
	MemberIDs []string `json:"memberIds" validate:"required,min=1,dive,required"`
}

type AddMembersRequest struct {
	MemberIDs []string `json:"memberIds" validate:"required,min=1,dive,required"`
}

type RenameRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

// loadRoom fetches a live room and checks the caller belongs to it.
func (s *Service) loadRoom(ctx context.Context, callerID, roomID string) (*models.Room, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.AssertMember(room, callerID); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *Service) GetOrCreateDirectRoom(ctx context.Context, callerID, peerID string) (*models.RoomView, error) {
	callerID, peerID = NormalizeID(callerID), NormalizeID(peerID)

	room, err := s.store.FindDirectRoom(ctx, callerID, peerID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if room == nil {
		candidate, err := models.NewDirectRoom(s.newID(), callerID, peerID, s.now())
		if err != nil {
			return nil, err
		}
		var created bool
		if room, created, err = s.store.CreateDirectRoom(ctx, candidate); err != nil {
			return nil, err
		}
		if created {
			s.log.Info("Direct room created", "room_id", room.ID, "owner", callerID)
		}
	}

	view, err := s.RoomView(ctx, callerID, room)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// GetOrCreateGroupRoom returns the owner's oldest group with exactly the
// same member set, creating one if none exists.
func (s *Service) GetOrCreateGroupRoom(ctx context.Context, ownerID string, req CreateGroupRequest) (*models.RoomView, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	ownerID = NormalizeID(ownerID)
	members := normalizeIDs(req.MemberIDs)
	if len(lo.Without(members, ownerID)) == 0 {
		return nil, apperr.Validation("at least one member required for group chat")
	}

	candidate, err := models.NewGroupRoom(s.newID(), ownerID, req.Name, members, s.now())
	if err != nil {
		return nil, err
	}
	room, created, err := s.store.FindOrCreateGroupRoom(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if created {
		s.log.Info("Group room created", "room_id", room.ID, "owner", ownerID, "members", len(room.MemberIDs))
	}

	view, err := s.RoomView(ctx, ownerID, room)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (s *Service) CreateRoom(ctx context.Context, callerID string, req CreateRoomRequest) (*models.RoomView, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	if req.IsGroup {
		return s.GetOrCreateGroupRoom(ctx, callerID, CreateGroupRequest{Name: req.Name, MemberIDs: req.MemberIDs})
	}
	return s.GetOrCreateDirectRoom(ctx, callerID, req.MemberIDs[0])
}

func (s *Service) GetRoom(ctx context.Context, callerID, roomID string) (*models.RoomView, error) {
	callerID = NormalizeID(callerID)
	room, err := s.loadRoom(ctx, callerID, roomID)
	if err != nil {
		return nil, err
	}
	view, err := s.RoomView(ctx, callerID, room)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (s *Service) ListRooms(ctx context.Context, callerID string, filter models.RoomFilter) ([]models.RoomView, error) {
	callerID = NormalizeID(callerID)
	rooms, err := s.store.ListRooms(ctx, callerID, filter)
	if err != nil {
		return nil, err
	}
	views := make([]models.RoomView, 0, len(rooms))
	for i := range rooms {
		view, err := s.RoomView(ctx, callerID, &rooms[i])
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	sortRoomViews(views)
	return views, nil
}

func (s *Service) RenameRoom(ctx context.Context, callerID, roomID, name string) (*models.RoomView, error) {
	callerID = NormalizeID(callerID)
	name = strings.TrimSpace(name)
	if err := s.check(RenameRequest{Name: name}); err != nil {
		return nil, err
	}

	room, err := s.loadRoom(ctx, callerID, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsGroup() {
		return nil, apperr.ErrNotAGroup
	}
	if err := s.guard.AssertOwner(room, callerID); err != nil {
		return nil, err
	}
	if err := s.store.RenameRoom(ctx, roomID, name); err != nil {
		return nil, err
	}
	room.Name = name

	view, err := s.RoomView(ctx, callerID, room)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// AddMembers grows a group in place, or turns a direct room into a new
// group that also holds the added members. The bool reports whether a new
// room was created.
func (s *Service) AddMembers(ctx context.Context, callerID, roomID string, req AddMembersRequest) (*models.RoomView, bool, error) {
	if err := s.check(req); err != nil {
		return nil, false, err
	}
	callerID = NormalizeID(callerID)
	requested := normalizeIDs(req.MemberIDs)
	if len(requested) == 0 {
		return nil, false, apperr.Validation("at least one member is required")
	}

	room, err := s.loadRoom(ctx, callerID, roomID)
	if err != nil {
		return nil, false, err
	}
	if room.IsGroup() {
		if err := s.guard.AssertOwner(room, callerID); err != nil {
			return nil, false, err
		}
	}
	newIDs := lo.Without(requested, room.MemberIDs...)
	if err := s.guard.AssertKnownContacts(ctx, callerID, newIDs); err != nil {
		return nil, false, err
	}

	if room.IsGroup() {
		if len(newIDs) > 0 {
			if room, err = s.store.AddMembers(ctx, room.ID, newIDs); err != nil {
				return nil, false, err
			}
			s.log.Info("Members added", "room_id", room.ID, "added", len(newIDs))
		}
		view, err := s.RoomView(ctx, callerID, room)
		if err != nil {
			return nil, false, err
		}
		return &view, false, nil
	}

	if len(newIDs) == 0 {
		return nil, false, apperr.Validation("no new members to add")
	}
	members := append(slices.Clone(room.MemberIDs), newIDs...)
	candidate, err := models.NewGroupRoom(s.newID(), callerID, models.GroupName(members), members, s.now())
	if err != nil {
		return nil, false, err
	}
	group, created, err := s.store.FindOrCreateGroupRoom(ctx, candidate)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.log.Info("Group room created from direct room", "room_id", group.ID, "direct_room_id", room.ID)
	}
	view, err := s.RoomView(ctx, callerID, group)
	if err != nil {
		return nil, false, err
	}
	return &view, created, nil
}

// DeleteRoom removes the room and everything in it. Ending the video session
// and notifying subscribers happen after the delete commits.
func (s *Service) DeleteRoom(ctx context.Context, callerID, roomID string) error {
	callerID = NormalizeID(callerID)
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if err := s.guard.AssertOwner(room, callerID); err != nil {
		return err
	}
	if err := s.store.DeleteRoom(ctx, room.ID); err != nil {
		return err
	}
	s.log.Info("Room deleted", "room_id", room.ID, "by", callerID)

	s.enqueue(events.Event{Kind: events.RoomDeleted, RoomID: room.ID, ActorID: callerID, At: s.now()})
	return nil
}
