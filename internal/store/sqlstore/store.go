package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pliu/chatcore/internal/models"
)

type SQLStore struct {
	db          *sql.DB
	driverName  string
	receiptMode models.ReceiptMode
}

type Option func(*SQLStore)

// WithReceiptMode selects message-level or per-recipient delivery tracking.
func WithReceiptMode(mode models.ReceiptMode) Option {
	return func(s *SQLStore) { s.receiptMode = mode }
}

func New(driverName, dataSourceName string, opts ...Option) (*SQLStore, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	if driverName == "sqlite3" {
		// One connection: sqlite serialises writers anyway, and ":memory:"
		// databases are per connection.
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLStore{db: db, driverName: driverName, receiptMode: models.ReceiptsPerMessage}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) ReceiptMode() models.ReceiptMode { return s.receiptMode }

func (s *SQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLStore) createTables() error {
	// Simplified for brevity, ideally use migrations
	query := `
	CREATE TABLE IF NOT EXISTS rooms (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		owner_id TEXT NOT NULL,
		is_group BOOLEAN NOT NULL DEFAULT FALSE,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		direct_key TEXT UNIQUE,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS room_members (
		room_id TEXT NOT NULL,
		member_id TEXT NOT NULL,
		PRIMARY KEY (room_id, member_id)
	);

	CREATE INDEX IF NOT EXISTS room_members_member_idx ON room_members (member_id);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		client_message_id TEXT,
		room_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		attachment_url TEXT,
		file_id TEXT,
		file_name TEXT,
		file_size BIGINT,
		file_type TEXT,
		type TEXT NOT NULL,
		sent_at DATETIME NOT NULL,
		delivered BOOLEAN NOT NULL DEFAULT FALSE,
		delivered_at DATETIME,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		read_at DATETIME,
		deleted BOOLEAN NOT NULL DEFAULT FALSE,
		deleted_at DATETIME,
		UNIQUE (room_id, sender_id, client_message_id)
	);

	CREATE INDEX IF NOT EXISTS messages_room_idx ON messages (room_id, sent_at);

	CREATE TABLE IF NOT EXISTS message_receipts (
		message_id TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		delivered_at DATETIME,
		read_at DATETIME,
		PRIMARY KEY (message_id, recipient_id)
	);

	CREATE TABLE IF NOT EXISTS contacts (
		owner_id TEXT NOT NULL,
		contact_id TEXT NOT NULL,
		PRIMARY KEY (owner_id, contact_id)
	);

	CREATE TABLE IF NOT EXISTS video_sessions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		started_by TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		ended_by TEXT
	);
	`

	if s.driverName == "postgres" {
		// Adjust for Postgres syntax
		query = strings.ReplaceAll(query, "INTEGER PRIMARY KEY AUTOINCREMENT", "SERIAL PRIMARY KEY")
		query = strings.ReplaceAll(query, "DATETIME", "TIMESTAMPTZ")
	}

	_, err := s.db.Exec(query)
	return err
}

// Helper to handle placeholders
func (s *SQLStore) rebind(query string) string {
	if s.driverName == "postgres" {
		// Replace ? with $1, $2, etc.
		n := strings.Count(query, "?")
		for i := 1; i <= n; i++ {
			query = strings.Replace(query, "?", fmt.Sprintf("$%d", i), 1)
		}
	}
	return query
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) withTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// serializable returns options for check-then-insert transactions. sqlite
// already runs one writer at a time.
func (s *SQLStore) serializable() *sql.TxOptions {
	if s.driverName == "postgres" {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
