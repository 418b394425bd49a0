package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/pliu/chatcore/internal/apperr"
	"github.com/pliu/chatcore/internal/models"
)

const messageColumns = `m.id, COALESCE(m.client_message_id, ''), m.room_id, m.sender_id, m.content,
	COALESCE(m.attachment_url, ''), COALESCE(m.file_id, ''), COALESCE(m.file_name, ''), COALESCE(m.file_size, 0), COALESCE(m.file_type, ''),
	m.type, m.sent_at, m.delivered, m.delivered_at, m.is_read, m.read_at, m.deleted, m.deleted_at,
	(SELECT COUNT(*) FROM message_receipts rc WHERE rc.message_id = m.id AND rc.delivered_at IS NOT NULL),
	(SELECT COUNT(*) FROM message_receipts rc WHERE rc.message_id = m.id AND rc.read_at IS NOT NULL)`

func scanMessage(scanner interface{ Scan(...any) error }) (models.Message, error) {
	var m models.Message
	var a models.Attachment
	var msgType string
	var deliveredAt, readAt, deletedAt sql.NullTime
	err := scanner.Scan(&m.ID, &m.ClientMessageID, &m.RoomID, &m.SenderID, &m.Content,
		&a.URL, &a.FileID, &a.FileName, &a.FileSize, &a.FileType,
		&msgType, &m.SentAt, &m.Delivered, &deliveredAt, &m.Read, &readAt, &m.Deleted, &deletedAt,
		&m.DeliveredTo, &m.ReadBy)
	if err != nil {
		return models.Message{}, err
	}
	m.Type = models.MessageType(msgType)
	if !a.IsEmpty() {
		m.Attachment = &a
	}
	m.DeliveredAt = timePtr(deliveredAt)
	m.ReadAt = timePtr(readAt)
	m.DeletedAt = timePtr(deletedAt)
	return m, nil
}

func (s *SQLStore) queryMessages(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// SaveMessage stores msg. Under ReceiptsPerRecipient the delivered/read
// flags are aggregates over receipts, so a new message starts with both unset.
func (s *SQLStore) SaveMessage(ctx context.Context, msg models.Message) (*models.Message, bool, error) {
	if s.receiptMode == models.ReceiptsPerRecipient && msg.Type != models.TypeSystem {
		msg.Delivered, msg.DeliveredAt = false, nil
	}

	a := msg.Attachment
	if a == nil {
		a = &models.Attachment{}
	}
	var deliveredAt sql.NullTime
	if msg.DeliveredAt != nil {
		deliveredAt = sql.NullTime{Time: msg.DeliveredAt.UTC(), Valid: true}
	}
	var fileSize sql.NullInt64
	if a.FileSize > 0 {
		fileSize = sql.NullInt64{Int64: a.FileSize, Valid: true}
	}

	query := s.rebind(`INSERT INTO messages
		(id, client_message_id, room_id, sender_id, content, attachment_url, file_id, file_name, file_size, file_type, type, sent_at, delivered, delivered_at, is_read, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE, FALSE)`)
	_, err := s.db.ExecContext(ctx, query,
		msg.ID, nullString(msg.ClientMessageID), msg.RoomID, msg.SenderID, msg.Content,
		nullString(a.URL), nullString(a.FileID), nullString(a.FileName), fileSize, nullString(a.FileType),
		string(msg.Type), msg.SentAt.UTC(), msg.Delivered, deliveredAt)
	if isUniqueViolation(err) && msg.ClientMessageID != "" {
		existing, findErr := s.findByClientID(ctx, msg.RoomID, msg.SenderID, msg.ClientMessageID)
		if findErr != nil {
			return nil, false, findErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	msg.Read, msg.ReadAt = false, nil
	return &msg, true, nil
}

func (s *SQLStore) findByClientID(ctx context.Context, roomID, senderID, clientID string) (*models.Message, error) {
	messages, err := s.queryMessages(ctx,
		"SELECT "+messageColumns+" FROM messages m WHERE m.room_id = ? AND m.sender_id = ? AND m.client_message_id = ?",
		roomID, senderID, clientID)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, apperr.NotFound("message not found")
	}
	return &messages[0], nil
}

func (s *SQLStore) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	query := s.rebind("SELECT " + messageColumns + " FROM messages m WHERE m.id = ?")
	m, err := scanMessage(s.db.QueryRowContext(ctx, query, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("message not found")
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLStore) ActiveMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	return s.queryMessages(ctx,
		"SELECT "+messageColumns+" FROM messages m WHERE m.room_id = ? AND m.deleted = FALSE ORDER BY m.sent_at ASC, m.seq ASC",
		roomID)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *SQLStore) SearchMessages(ctx context.Context, roomID, query string) ([]models.Message, error) {
	pattern := "%" + likeEscaper.Replace(strings.ToLower(query)) + "%"
	return s.queryMessages(ctx,
		"SELECT "+messageColumns+` FROM messages m
		WHERE m.room_id = ? AND m.deleted = FALSE AND LOWER(m.content) LIKE ? ESCAPE '\'
		ORDER BY m.sent_at ASC, m.seq ASC`,
		roomID, pattern)
}

// LastMessage returns the newest live message, or nil for an empty room.
func (s *SQLStore) LastMessage(ctx context.Context, roomID string) (*models.Message, error) {
	messages, err := s.queryMessages(ctx,
		"SELECT "+messageColumns+" FROM messages m WHERE m.room_id = ? AND m.deleted = FALSE ORDER BY m.sent_at DESC, m.seq DESC LIMIT 1",
		roomID)
	if err != nil || len(messages) == 0 {
		return nil, err
	}
	return &messages[0], nil
}

func (s *SQLStore) MarkAllDelivered(ctx context.Context, roomID, readerID string, at time.Time) (int64, error) {
	at = at.UTC()
	if s.receiptMode == models.ReceiptsPerRecipient {
		return s.markReceipts(ctx, roomID, readerID, at, false)
	}
	query := s.rebind(`UPDATE messages SET delivered = TRUE, delivered_at = ?
		WHERE room_id = ? AND sender_id <> ? AND deleted = FALSE AND delivered = FALSE`)
	return execCount(s.db.ExecContext(ctx, query, at, roomID, readerID))
}

func (s *SQLStore) MarkAllRead(ctx context.Context, roomID, readerID string, at time.Time) (int64, error) {
	at = at.UTC()
	if s.receiptMode == models.ReceiptsPerRecipient {
		return s.markReceipts(ctx, roomID, readerID, at, true)
	}
	query := s.rebind(`UPDATE messages SET is_read = TRUE, read_at = ?, delivered = TRUE, delivered_at = COALESCE(delivered_at, ?)
		WHERE room_id = ? AND sender_id <> ? AND deleted = FALSE AND is_read = FALSE`)
	return execCount(s.db.ExecContext(ctx, query, at, at, roomID, readerID))
}

// markReceipts records per-recipient receipts for every live message the
// reader did not author, then raises the message flags for messages every
// other member has now acknowledged.
func (s *SQLStore) markReceipts(ctx context.Context, roomID, readerID string, at time.Time, read bool) (int64, error) {
	var marked int64
	err := s.withTx(ctx, nil, func(tx *sql.Tx) error {
		seed := s.rebind(`INSERT INTO message_receipts (message_id, recipient_id)
			SELECT id, CAST(? AS TEXT) FROM messages WHERE room_id = ? AND sender_id <> ? AND deleted = FALSE
			ON CONFLICT (message_id, recipient_id) DO NOTHING`)
		if _, err := tx.ExecContext(ctx, seed, readerID, roomID, readerID); err != nil {
			return err
		}

		var update string
		var args []any
		if read {
			update = `UPDATE message_receipts SET read_at = ?, delivered_at = COALESCE(delivered_at, ?)
				WHERE recipient_id = ? AND read_at IS NULL
				AND message_id IN (SELECT id FROM messages WHERE room_id = ? AND sender_id <> ? AND deleted = FALSE)`
			args = []any{at, at, readerID, roomID, readerID}
		} else {
			update = `UPDATE message_receipts SET delivered_at = ?
				WHERE recipient_id = ? AND delivered_at IS NULL
				AND message_id IN (SELECT id FROM messages WHERE room_id = ? AND sender_id <> ? AND deleted = FALSE)`
			args = []any{at, readerID, roomID, readerID}
		}
		n, err := execCount(tx.ExecContext(ctx, s.rebind(update), args...))
		if err != nil {
			return err
		}
		marked = n

		const others = `(SELECT COUNT(*) FROM room_members rm WHERE rm.room_id = messages.room_id AND rm.member_id <> messages.sender_id)`
		deliveredAll := s.rebind(`UPDATE messages SET delivered = TRUE, delivered_at = ?
			WHERE room_id = ? AND deleted = FALSE AND delivered = FALSE
			AND (SELECT COUNT(*) FROM message_receipts r WHERE r.message_id = messages.id AND r.delivered_at IS NOT NULL) >= ` + others)
		if _, err := tx.ExecContext(ctx, deliveredAll, at, roomID); err != nil {
			return err
		}
		if !read {
			return nil
		}
		readAll := s.rebind(`UPDATE messages SET is_read = TRUE, read_at = ?
			WHERE room_id = ? AND deleted = FALSE AND is_read = FALSE
			AND (SELECT COUNT(*) FROM message_receipts r WHERE r.message_id = messages.id AND r.read_at IS NOT NULL) >= ` + others)
		_, err = tx.ExecContext(ctx, readAll, at, roomID)
		return err
	})
	return marked, err
}

func (s *SQLStore) CountUnread(ctx context.Context, roomID, readerID string) (int64, error) {
	var count int64
	if s.receiptMode == models.ReceiptsPerRecipient {
		query := s.rebind(`SELECT COUNT(*) FROM messages m
			WHERE m.room_id = ? AND m.sender_id <> ? AND m.deleted = FALSE
			AND NOT EXISTS (SELECT 1 FROM message_receipts r WHERE r.message_id = m.id AND r.recipient_id = ? AND r.read_at IS NOT NULL)`)
		err := s.db.QueryRowContext(ctx, query, roomID, readerID, readerID).Scan(&count)
		return count, err
	}
	query := s.rebind("SELECT COUNT(*) FROM messages WHERE room_id = ? AND sender_id <> ? AND deleted = FALSE AND is_read = FALSE")
	err := s.db.QueryRowContext(ctx, query, roomID, readerID).Scan(&count)
	return count, err
}

func (s *SQLStore) DeleteMessageForSender(ctx context.Context, messageID, senderID string, at time.Time) (int64, error) {
	query := s.rebind("UPDATE messages SET deleted = TRUE, deleted_at = ? WHERE id = ? AND sender_id = ? AND deleted = FALSE")
	return execCount(s.db.ExecContext(ctx, query, at.UTC(), messageID, senderID))
}

func (s *SQLStore) DeleteMessageForAll(ctx context.Context, messageID string, at time.Time) (int64, error) {
	query := s.rebind("UPDATE messages SET deleted = TRUE, deleted_at = ? WHERE id = ? AND deleted = FALSE")
	return execCount(s.db.ExecContext(ctx, query, at.UTC(), messageID))
}

func (s *SQLStore) DeleteAllForRoom(ctx context.Context, roomID string) error {
	return s.withTx(ctx, nil, func(tx *sql.Tx) error {
		return s.deleteRoomMessages(ctx, tx, roomID)
	})
}

func (s *SQLStore) deleteRoomMessages(ctx context.Context, q querier, roomID string) error {
	receipts := s.rebind("DELETE FROM message_receipts WHERE message_id IN (SELECT id FROM messages WHERE room_id = ?)")
	if _, err := q.ExecContext(ctx, receipts, roomID); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, s.rebind("DELETE FROM messages WHERE room_id = ?"), roomID)
	return err
}

func execCount(result sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
