package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pliu/chatcore/internal/apperr"
	"github.com/pliu/chatcore/internal/models"
)

const roomColumns = "r.id, r.name, r.owner_id, r.is_group, r.is_deleted, r.created_at"

func scanRoom(scanner interface{ Scan(...any) error }) (models.Room, error) {
	var room models.Room
	var isGroup bool
	if err := scanner.Scan(&room.ID, &room.Name, &room.OwnerID, &isGroup, &room.IsDeleted, &room.CreatedAt); err != nil {
		return models.Room{}, err
	}
	if isGroup {
		room.Kind = models.KindGroup
	}
	return room, nil
}

func (s *SQLStore) insertRoom(ctx context.Context, q querier, room models.Room) error {
	var directKey sql.NullString
	if !room.IsGroup() {
		directKey = nullString(models.DirectKey(room.MemberIDs[0], room.MemberIDs[1]))
	}
	query := s.rebind("INSERT INTO rooms (id, name, owner_id, is_group, is_deleted, direct_key, created_at) VALUES (?, ?, ?, ?, FALSE, ?, ?)")
	if _, err := q.ExecContext(ctx, query, room.ID, room.Name, room.OwnerID, room.IsGroup(), directKey, room.CreatedAt.UTC()); err != nil {
		return err
	}
	return s.insertMembers(ctx, q, room.ID, room.MemberIDs)
}

func (s *SQLStore) insertMembers(ctx context.Context, q querier, roomID string, memberIDs []string) error {
	query := s.rebind("INSERT INTO room_members (room_id, member_id) VALUES (?, ?) ON CONFLICT (room_id, member_id) DO NOTHING")
	for _, member := range memberIDs {
		if _, err := q.ExecContext(ctx, query, roomID, member); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) loadMembers(ctx context.Context, q querier, room *models.Room) error {
	query := s.rebind("SELECT member_id FROM room_members WHERE room_id = ? ORDER BY member_id")
	rows, err := q.QueryContext(ctx, query, room.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	room.MemberIDs = room.MemberIDs[:0]
	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return err
		}
		room.MemberIDs = append(room.MemberIDs, member)
	}
	return rows.Err()
}

// queryRooms collects rows before loading members, since lib/pq cannot
// interleave queries on one connection.
func (s *SQLStore) queryRooms(ctx context.Context, q querier, query string, args ...any) ([]models.Room, error) {
	rows, err := q.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}

	var rooms []models.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		rooms = append(rooms, room)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range rooms {
		if err := s.loadMembers(ctx, q, &rooms[i]); err != nil {
			return nil, err
		}
	}
	return rooms, nil
}

func (s *SQLStore) getRoom(ctx context.Context, q querier, roomID string) (*models.Room, error) {
	query := s.rebind("SELECT " + roomColumns + " FROM rooms r WHERE r.id = ? AND r.is_deleted = FALSE")
	room, err := scanRoom(q.QueryRowContext(ctx, query, roomID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("chat room not found")
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadMembers(ctx, q, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *SQLStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	return s.getRoom(ctx, s.db, roomID)
}

func (s *SQLStore) FindDirectRoom(ctx context.Context, a, b string) (*models.Room, error) {
	rooms, err := s.queryRooms(ctx, s.db,
		"SELECT "+roomColumns+" FROM rooms r WHERE r.direct_key = ? AND r.is_group = FALSE AND r.is_deleted = FALSE",
		models.DirectKey(a, b))
	if err != nil {
		return nil, err
	}
	if len(rooms) == 0 {
		return nil, apperr.NotFound("direct chat not found")
	}
	return &rooms[0], nil
}

func (s *SQLStore) CreateDirectRoom(ctx context.Context, room models.Room) (*models.Room, bool, error) {
	if room.IsGroup() || len(room.MemberIDs) != 2 {
		return nil, false, apperr.Validation("direct chat needs exactly two members")
	}

	err := s.withTx(ctx, nil, func(tx *sql.Tx) error {
		return s.insertRoom(ctx, tx, room)
	})
	if isUniqueViolation(err) {
		// Lost the race against another request for the same pair.
		existing, findErr := s.FindDirectRoom(ctx, room.MemberIDs[0], room.MemberIDs[1])
		if findErr != nil {
			return nil, false, fmt.Errorf("resolve direct room conflict: %w", findErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &room, true, nil
}

func (s *SQLStore) FindOrCreateGroupRoom(ctx context.Context, room models.Room) (*models.Room, bool, error) {
	if !room.IsGroup() {
		return nil, false, apperr.ErrNotAGroup
	}

	var result *models.Room
	var created bool
	err := s.withTx(ctx, s.serializable(), func(tx *sql.Tx) error {
		candidates, err := s.queryRooms(ctx, tx,
			"SELECT "+roomColumns+" FROM rooms r WHERE r.owner_id = ? AND r.is_group = TRUE AND r.is_deleted = FALSE ORDER BY r.created_at ASC, r.seq ASC",
			room.OwnerID)
		if err != nil {
			return err
		}
		for i := range candidates {
			if models.SameMembers(candidates[i].MemberIDs, room.MemberIDs) {
				result = &candidates[i]
				return nil
			}
		}
		if err := s.insertRoom(ctx, tx, room); err != nil {
			return err
		}
		result, created = &room, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

func (s *SQLStore) ListRooms(ctx context.Context, memberID string, filter models.RoomFilter) ([]models.Room, error) {
	query := "SELECT " + roomColumns + ` FROM rooms r
		JOIN room_members m ON r.id = m.room_id
		WHERE m.member_id = ? AND r.is_deleted = FALSE`
	args := []any{memberID}
	switch filter {
	case models.FilterGroup:
		query += " AND r.is_group = TRUE"
	case models.FilterDirect:
		query += " AND r.is_group = FALSE"
	}
	query += " ORDER BY r.created_at DESC, r.seq DESC"
	return s.queryRooms(ctx, s.db, query, args...)
}

func (s *SQLStore) RenameRoom(ctx context.Context, roomID, name string) error {
	query := s.rebind("UPDATE rooms SET name = ? WHERE id = ? AND is_deleted = FALSE")
	result, err := s.db.ExecContext(ctx, query, name, roomID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperr.NotFound("chat room not found")
	}
	return nil
}

func (s *SQLStore) AddMembers(ctx context.Context, roomID string, memberIDs []string) (*models.Room, error) {
	var room *models.Room
	err := s.withTx(ctx, nil, func(tx *sql.Tx) error {
		var err error
		if room, err = s.getRoom(ctx, tx, roomID); err != nil {
			return err
		}
		if !room.IsGroup() {
			return apperr.ErrNotAGroup
		}
		if err := s.insertMembers(ctx, tx, roomID, memberIDs); err != nil {
			return err
		}
		return s.loadMembers(ctx, tx, room)
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (s *SQLStore) DeleteRoom(ctx context.Context, roomID string) error {
	return s.withTx(ctx, nil, func(tx *sql.Tx) error {
		if err := s.deleteRoomMessages(ctx, tx, roomID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM room_members WHERE room_id = ?"), roomID); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, s.rebind("DELETE FROM rooms WHERE id = ?"), roomID)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return apperr.NotFound("chat room not found")
		}
		return nil
	})
}
