package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pliu/chatcore/internal/apperr"
	"github.com/pliu/chatcore/internal/events"
	"github.com/pliu/chatcore/internal/mocks"
	"github.com/pliu/chatcore/internal/models"
	"github.com/pliu/chatcore/internal/store/sqlstore"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	alice = "alice@example.com"
	bob   = "bob@example.com"
	carol = "carol@example.com"
	dave  = "dave@example.com"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Enqueue(evt events.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return true
}

func (p *recordingPublisher) ofKind(kind events.Kind) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, evt := range p.events {
		if evt.Kind == kind {
			out = append(out, evt)
		}
	}
	return out
}

// steppingClock hands out strictly increasing times.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type fixture struct {
	svc       *Service
	store     *sqlstore.SQLStore
	contacts  *mocks.MockContacts
	published *recordingPublisher
}

func newFixture(t *testing.T, mode models.ReceiptMode) *fixture {
	t.Helper()
	st, err := sqlstore.New("sqlite3", ":memory:", sqlstore.WithReceiptMode(mode))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctrl := gomock.NewController(t)
	contacts := mocks.NewMockContacts(ctrl)
	published := &recordingPublisher{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(st, contacts, published, log, Config{ReceiptMode: mode}, WithClock(steppingClock()))
	return &fixture{svc: svc, store: st, contacts: contacts, published: published}
}

func TestDirectRoomIsSymmetricAndIdempotent(t *testing.T) {
	f := newFixture(t, models.ReceiptsPerMessage)
	ctx := context.Background()

	first, err := f.svc.GetOrCreateDirectRoom(ctx, alice, bob)
	require.NoError(t, err)
	again, err := f.svc.GetOrCreateDirectRoom(ctx, alice, bob)
	require.NoError(t, err)
	reverse, err := f.svc.GetOrCreateDirectRoom(ctx, "  BOB@example.com", alice)
	require.NoError(t, err)

	require.Equal(t, first.ID, again.ID)
	require.Equal(t, first.ID, reverse.ID)
	require.False(t, first.IsGroup)
	require.Equal(t, bob, first.Name)
	require.Equal(t, alice, reverse.Name)
	require.False(t, first.CanRename)
	require.True(t, first.CanDelete)
	require.False(t, reverse.CanDelete)
}

func TestDirectRoomRejectsSelf(t *testing.T) {
	f := newFixture(t, models.ReceiptsPerMessage)
	_, err := f.svc.GetOrCreateDirectRoom(context.Background(), alice, alice)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestConcurrentDirectRoomCreatesOneRoom(t *testing.T) {
	f := newFixture(t, models.ReceiptsPerMessage)
	ctx := context.Background()

	const callers = 8
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := alice, bob
			if i%2 == 1 {
				a, b = b, a
			}
			view, err := f.svc.GetOrCreateDirectRoom(ctx, a, b)
			if err == nil {
				ids[i] = view.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
	rooms, err := f.svc.ListRooms(ctx, alice, models.FilterDirect)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
}

func TestGroupRoomDedup(t *testing.T) {
	f := newFixture(t, models.ReceiptsPerMessage)
	ctx := context.Background()

	first, err := f.svc.GetOrCreateGroupRoom(ctx, alice, CreateGroupRequest{Name: "T", MemberIDs: []string{bob, carol}})
	require.NoError(t, err)
	second, err := f.svc.GetOrCreateGroupRoom(ctx, alice, CreateGroupRequest{Name: "T", MemberIDs: []string{carol, bob, alice}})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.ElementsMatch(t, []string{alice, bob, carol}, first.MemberIDs)
	require.True(t, first.CanRename)

	other, err := f.svc.GetOrCreateGroupRoom(ctx, alice, CreateGroupRequest{Name: "T", MemberIDs: []string{bob}})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, other.ID)
}

func TestGroupRoomValidation(t *testing.T) {
	f := newFixture(t, models.ReceiptsPerMessage)
	ctx := context.Background()

	_, err := f.svc.GetOrCreateGroupRoom(ctx, alice, CreateGroupRequest{Name: "", MemberIDs: []string{bob}})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.GetOrCreateGroupRoom(ctx, alice, CreateGroupRequest{Name: "T"})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.GetOrCreateGroupRoom(ctx, alice, CreateGroupRequest{Name: "T", MemberIDs: []string{alice}})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.GetOrCreateGroupRoom(ctx, alice, CreateGroupRequest{Name: "   ", MemberIDs: []string{bob}})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreateRoom(t *testing.T) {
	f := newFixture(t, models.ReceiptsPerMessage)
	ctx := context.Background()

	direct, err := f.svc.CreateRoom(ctx, alice, CreateRoomRequest{MemberIDs: []string{bob}})
	require.NoError(t, err)
	require.False(t, direct.IsGroup)

	group, err := f.svc.CreateRoom(ctx, alice, CreateRoomRequest{IsGroup: true, Name: "Team", MemberIDs: []string{bob, carol}})
	require.NoError(t, err)
	require.True(t, group.IsGroup)
	require.Equal(t, "Team", group.Name)

	_, err = f.svc.CreateRoom(ctx, alice, CreateRoomRequest{IsGroup: true, Name: "Team"})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRenameRoom(t *testing.T) {
	f := newFixture(t, models.ReceiptsPerMessage)
	ctx := context.Background()

	group, err := f.svc.GetOrCreateGroupRoom(ctx, alice, CreateGroupRequest{Name: "T", MemberIDs: []string{bob}})
	require.NoError(t, err)
	direct, err := f.svc.GetOrCreateDirectRoom(ctx, alice, bob)
	require.NoError(t, err)

	_, err = f.svc.RenameRoom(ctx, alice, direct.ID, "New")
	require.ErrorIs(t, err, apperr.ErrValidation)
	require.ErrorIs(t, err, apperr.ErrNotAGroup)

	_, err = f.svc.RenameRoom(ctx, bob, group.ID, "New")
	require.ErrorIs(t, err, apperr.ErrForbidden)

	// Outsiders learn nothing about the room's kind.
	_, err = f.svc.RenameRoom(ctx, carol, direct.ID, "New")
	require.ErrorIs(t, err, apperr.ErrForbidden)
	require.NotErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.RenameRoom(ctx, carol, group.ID, "New")
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.RenameRoom(ctx, alice, group.ID, "  ")
	require.ErrorIs(t, err, apperr.ErrValidation)

	renamed, err := f.svc.RenameRoom(ctx, alice, group.ID, " Renamed ")
	require.NoError(t, err)
	require.Equal(t, "Renamed", renamed.Name)

	fetched, err := f.svc.GetRoom(ctx, bob, group.ID)
	require.NoError(t, err)
	require.Equal(t, "Renamed", fetched.Name)
	require.False(t, fetched.CanRename)
}

func TestGetRoomRequiresMembership(t *testing.T) {
	f := newFixture(t, models.ReceiptsPerMessage)
	ctx := context.Background()

	room, err := f.svc.GetOrCreateDirectRoom(ctx, alice, bob)
	require.NoError(t, err)

	_, err = f.svc.GetRoom(ctx, carol, room.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.GetRoom(ctx, alice, "missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAddMembersToGroup(t *testing.T) {
	f := newFixture(t, models.ReceiptsPerMessage)
	ctx := context.Background()

	group, err := f.svc.GetOrCreateGroupRoom(ctx, alice, CreateGroupRequest{Name: "T", MemberIDs: []string{bob}})
	require.NoError(t, err)

	// Non-owner member is refused before contacts are consulted.
	_, _, err = f.svc.AddMembers(ctx, bob, group.ID, AddMembersRequest{MemberIDs: []string{carol}})
	require.ErrorIs(t, err, apperr.ErrForbidden)

	f.contacts.EXPECT().ContactsOf(gomock.Any(), alice).Return([]string{carol}, nil).AnyTimes()

	_, _, err = f.svc.AddMembers(ctx, alice, group.ID, AddMembersRequest{MemberIDs: []string{dave, carol, "eve@example.com"}})
	require.ErrorIs(t, err, apperr.ErrValidation)
	var unknown *apperr.UnknownContactsError
	require.True(t, errors.As(err, &unknown))
	require.Equal(t, []string{dave, "eve@example.com"}, unknown.Members)

	updated, created, err := f.svc.AddMembers(ctx, alice, group.ID, AddMembersRequest{MemberIDs: []string{carol, "CAROL@example.com", bob}})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, group.ID, updated.ID)
	require.ElementsMatch(t, []string{alice, bob, carol}, updated.MemberIDs)

	// Adding again is a no-op.
	again, _, err := f.svc.AddMembers(ctx, alice, group.ID, AddMembersRequest{MemberIDs: []string{carol}})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{alice, bob, carol}, again.MemberIDs)
}

func TestAddMembersToDirectCreatesGroup(t *testing.T) {
	f := newFixture(t, models.ReceiptsPerMessage)
	ctx := context.Background()

	direct, err := f.svc.GetOrCreateDirectRoom(ctx, alice, bob)
	require.NoError(t, err)

	f.contacts.EXPECT().ContactsOf(gomock.Any(), bob).Return([]string{carol}, nil)

	group, created, err := f.svc.AddMembers(ctx, bob, direct.ID, AddMembersRequest{MemberIDs: []string{carol}})
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, direct.ID, group.ID)
	require.True(t, group.IsGroup)
	require.Equal(t, bob, group.OwnerID)
	require.ElementsMatch(t, []string{alice, bob, carol}, group.MemberIDs)
	require.Equal(t, models.GroupName([]string{alice, bob, carol}), group.Name)

	unchanged, err := f.svc.GetRoom(ctx, alice, direct.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{alice, bob}, unchanged.MemberIDs)
	require.False(t, unchanged.IsGroup)

	resolved, err := f.svc.GetOrCreateDirectRoom(ctx, alice, bob)
	require.NoError(t, err)
	require.Equal(t, direct.ID, resolved.ID)

	_, _, err = f.svc.AddMembers(ctx, carol, direct.ID, AddMembersRequest{MemberIDs: []string{dave}})
	require.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestDeleteRoom(t *testing.T) {
	f := newFixture(t, models.ReceiptsPerMessage)
	ctx := context.Background()

	group, err := f.svc.GetOrCreateGroupRoom(ctx, alice, CreateGroupRequest{Name: "T", MemberIDs: []string{bob}})
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, bob, group.ID, SendRequest{Content: "hi"})
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.DeleteRoom(ctx, bob, group.ID), apperr.ErrForbidden)
	require.Empty(t, f.published.ofKind(events.RoomDeleted))

	require.NoError(t, f.svc.DeleteRoom(ctx, alice, group.ID))

	for _, member := range []string{alice, bob} {
		rooms, err := f.svc.ListRooms(ctx, member, models.FilterAll)
		require.NoError(t, err)
		require.Empty(t, rooms)
	}
	messages, err := f.store.ActiveMessages(ctx, group.ID)
	require.NoError(t, err)
	require.Empty(t, messages)

	deleted := f.published.ofKind(events.RoomDeleted)
	require.Len(t, deleted, 1)
	require.Equal(t, group.ID, deleted[0].RoomID)
	require.Equal(t, alice, deleted[0].ActorID)

	require.ErrorIs(t, f.svc.DeleteRoom(ctx, alice, group.ID), apperr.ErrNotFound)
}

func TestListRoomsFiltersAndSorts(t *testing.T) {
	f := newFixture(t, models.ReceiptsPerMessage)
	ctx := context.Background()

	direct, err := f.svc.GetOrCreateDirectRoom(ctx, alice, bob)
	require.NoError(t, err)
	quiet, err := f.svc.GetOrCreateGroupRoom(ctx, alice, CreateGroupRequest{Name: "Quiet", MemberIDs: []string{carol}})
	require.NoError(t, err)
	busy, err := f.svc.GetOrCreateGroupRoom(ctx, alice, CreateGroupRequest{Name: "Busy", MemberIDs: []string{bob, carol}})
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, bob, busy.ID, SendRequest{Content: "first"})
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, bob, direct.ID, SendRequest{Content: "latest"})
	require.NoError(t, err)

	all, err := f.svc.ListRooms(ctx, alice, models.FilterAll)
	require.NoError(t, err)
	require.Equal(t, []string{direct.ID, busy.ID, quiet.ID}, []string{all[0].ID, all[1].ID, all[2].ID})
	require.Equal(t, "latest", all[0].LastMessagePreview)
	require.EqualValues(t, 1, all[0].UnreadCount)
	require.Nil(t, all[2].LastMessageTime)

	groups, err := f.svc.ListRooms(ctx, alice, models.FilterGroup)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	directs, err := f.svc.ListRooms(ctx, alice, models.FilterDirect)
	require.NoError(t, err)
	require.Len(t, directs, 1)

	none, err := f.svc.ListRooms(ctx, dave, models.FilterAll)
	require.NoError(t, err)
	require.Empty(t, none)
}
