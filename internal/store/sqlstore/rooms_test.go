package sqlstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pliu/chatcore/internal/apperr"
	"github.com/pliu/chatcore/internal/models"
	"github.com/stretchr/testify/require"
)

func TestCreateDirectRoom(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()
	ctx := context.Background()
	req := require.New(t)

	room, created, err := testStore.CreateDirectRoom(ctx, directRoom(t, "alice@example.com", "bob@example.com"))
	req.NoError(err)
	req.True(created)

	// The pair is canonicalised, so the reversed order hits the same key.
	again, created, err := testStore.CreateDirectRoom(ctx, directRoom(t, "bob@example.com", "alice@example.com"))
	req.NoError(err)
	req.False(created)
	req.Equal(room.ID, again.ID)

	found, err := testStore.FindDirectRoom(ctx, "bob@example.com", "alice@example.com")
	req.NoError(err)
	req.Equal(room.ID, found.ID)
	req.Equal([]string{"alice@example.com", "bob@example.com"}, found.MemberIDs)
	req.Equal("alice@example.com", found.OwnerID)
}

func TestCreateDirectRoomConcurrent(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()
	ctx := context.Background()

	const callers = 8
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice@example.com", "bob@example.com"
			if i%2 == 1 {
				a, b = b, a
			}
			room, _, err := testStore.CreateDirectRoom(ctx, directRoom(t, a, b))
			if err != nil {
				t.Errorf("CreateDirectRoom: %v", err)
				return
			}
			ids[i] = room.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
	rooms, err := testStore.ListRooms(ctx, "alice@example.com", models.FilterDirect)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
}

func TestFindOrCreateGroupRoom(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()
	ctx := context.Background()
	req := require.New(t)

	first, created, err := testStore.FindOrCreateGroupRoom(ctx, groupRoom(t, "owner@example.com", "Team", "x@example.com", "y@example.com"))
	req.NoError(err)
	req.True(created)

	second, created, err := testStore.FindOrCreateGroupRoom(ctx, groupRoom(t, "owner@example.com", "Other name", "y@example.com", "x@example.com"))
	req.NoError(err)
	req.False(created)
	req.Equal(first.ID, second.ID)
	req.Equal("Team", second.Name)

	// Different member set, different room.
	third, created, err := testStore.FindOrCreateGroupRoom(ctx, groupRoom(t, "owner@example.com", "Team", "x@example.com"))
	req.NoError(err)
	req.True(created)
	req.NotEqual(first.ID, third.ID)

	// Same members but another owner is not deduplicated.
	fourth, created, err := testStore.FindOrCreateGroupRoom(ctx, groupRoom(t, "x@example.com", "Team", "owner@example.com", "y@example.com"))
	req.NoError(err)
	req.True(created)
	req.NotEqual(first.ID, fourth.ID)
}

func TestListRooms(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()
	ctx := context.Background()
	req := require.New(t)

	_, _, err := testStore.CreateDirectRoom(ctx, directRoom(t, "alice@example.com", "bob@example.com"))
	req.NoError(err)
	_, _, err = testStore.FindOrCreateGroupRoom(ctx, groupRoom(t, "alice@example.com", "Team", "carol@example.com"))
	req.NoError(err)
	_, _, err = testStore.CreateDirectRoom(ctx, directRoom(t, "bob@example.com", "carol@example.com"))
	req.NoError(err)

	all, err := testStore.ListRooms(ctx, "alice@example.com", models.FilterAll)
	req.NoError(err)
	req.Len(all, 2)

	groups, err := testStore.ListRooms(ctx, "alice@example.com", models.FilterGroup)
	req.NoError(err)
	req.Len(groups, 1)
	req.Equal("Team", groups[0].Name)

	directs, err := testStore.ListRooms(ctx, "carol@example.com", models.FilterDirect)
	req.NoError(err)
	req.Len(directs, 1)
	req.ElementsMatch([]string{"bob@example.com", "carol@example.com"}, directs[0].MemberIDs)
}

func TestRenameRoom(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()
	ctx := context.Background()

	room, _, err := testStore.FindOrCreateGroupRoom(ctx, groupRoom(t, "alice@example.com", "Team", "bob@example.com"))
	require.NoError(t, err)

	require.NoError(t, testStore.RenameRoom(ctx, room.ID, "Renamed"))
	got, err := testStore.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	require.Equal(t, "Renamed", got.Name)

	require.ErrorIs(t, testStore.RenameRoom(ctx, "missing", "x"), apperr.ErrNotFound)
}

func TestAddMembers(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()
	ctx := context.Background()
	req := require.New(t)

	room, _, err := testStore.FindOrCreateGroupRoom(ctx, groupRoom(t, "alice@example.com", "Team", "bob@example.com"))
	req.NoError(err)

	updated, err := testStore.AddMembers(ctx, room.ID, []string{"bob@example.com", "carol@example.com"})
	req.NoError(err)
	req.ElementsMatch([]string{"alice@example.com", "bob@example.com", "carol@example.com"}, updated.MemberIDs)

	direct, _, err := testStore.CreateDirectRoom(ctx, directRoom(t, "alice@example.com", "dave@example.com"))
	req.NoError(err)
	_, err = testStore.AddMembers(ctx, direct.ID, []string{"carol@example.com"})
	req.ErrorIs(err, apperr.ErrValidation)
}

func TestDeleteRoom(t *testing.T) {
	SetupTestDB(t)
	defer TeardownTestDB()
	ctx := context.Background()
	req := require.New(t)

	room, _, err := testStore.CreateDirectRoom(ctx, directRoom(t, "alice@example.com", "bob@example.com"))
	req.NoError(err)
	_, _, err = testStore.SaveMessage(ctx, textMessage(room.ID, "alice@example.com", "hello", time.Now()))
	req.NoError(err)

	req.NoError(testStore.DeleteRoom(ctx, room.ID))

	_, err = testStore.GetRoom(ctx, room.ID)
	req.ErrorIs(err, apperr.ErrNotFound)
	rooms, err := testStore.ListRooms(ctx, "bob@example.com", models.FilterAll)
	req.NoError(err)
	req.Empty(rooms)
	messages, err := testStore.ActiveMessages(ctx, room.ID)
	req.NoError(err)
	req.Empty(messages)

	req.ErrorIs(testStore.DeleteRoom(ctx, room.ID), apperr.ErrNotFound)

	// The pair can open a fresh direct room afterwards.
	fresh, created, err := testStore.CreateDirectRoom(ctx, directRoom(t, "bob@example.com", "alice@example.com"))
	req.NoError(err)
	req.True(created)
	req.NotEqual(room.ID, fresh.ID)
}
