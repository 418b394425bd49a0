package sqlstore

import (
	"context"
	"time"
)

// ContactsOf reads the contact list kept by the contacts subsystem.
func (s *SQLStore) ContactsOf(ctx context.Context, accountID string) ([]string, error) {
	query := s.rebind("SELECT contact_id FROM contacts WHERE owner_id = ? ORDER BY contact_id")
	rows, err := s.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []string
	for rows.Next() {
		var contact string
		if err := rows.Scan(&contact); err != nil {
			return nil, err
		}
		contacts = append(contacts, contact)
	}
	return contacts, rows.Err()
}

func (s *SQLStore) AddContact(ctx context.Context, ownerID, contactID string) error {
	query := s.rebind("INSERT INTO contacts (owner_id, contact_id) VALUES (?, ?) ON CONFLICT (owner_id, contact_id) DO NOTHING")
	_, err := s.db.ExecContext(ctx, query, ownerID, contactID)
	return err
}

func (s *SQLStore) StartVideoSession(ctx context.Context, roomID, startedBy string, at time.Time) error {
	query := s.rebind("INSERT INTO video_sessions (room_id, started_by, started_at) VALUES (?, ?, ?)")
	_, err := s.db.ExecContext(ctx, query, roomID, startedBy, at.UTC())
	return err
}

// EndActiveSession closes any open video session tied to the room. No open
// session is not an error.
func (s *SQLStore) EndActiveSession(ctx context.Context, roomID, endedBy string) error {
	query := s.rebind("UPDATE video_sessions SET ended_at = ?, ended_by = ? WHERE room_id = ? AND ended_at IS NULL")
	_, err := s.db.ExecContext(ctx, query, time.Now().UTC(), endedBy, roomID)
	return err
}

func (s *SQLStore) HasActiveVideoSession(ctx context.Context, roomID string) (bool, error) {
	var exists bool
	query := s.rebind("SELECT EXISTS(SELECT 1 FROM video_sessions WHERE room_id = ? AND ended_at IS NULL)")
	err := s.db.QueryRowContext(ctx, query, roomID).Scan(&exists)
	return exists, err
}
