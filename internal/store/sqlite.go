// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Documents are stored as JSON next to the indexed columns they are queried by

package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// An in-memory database only lives as long as its connection
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the collections if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			message_id      TEXT PRIMARY KEY,
			hotel_id        TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			direction       TEXT NOT NULL,
			status          TEXT NOT NULL,
			ts              INTEGER NOT NULL,
			doc             TEXT NOT NULL,

			CHECK (direction IN ('in', 'out')),
			CHECK (status IN ('sent', 'pending', 'rejected', 'failed'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(hotel_id, conversation_id, ts);
		CREATE INDEX IF NOT EXISTS idx_messages_status
			ON messages(hotel_id, status, ts);

		CREATE TABLE IF NOT EXISTS conversations (
			hotel_id        TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			updated_at      INTEGER NOT NULL,
			doc             TEXT NOT NULL,
			PRIMARY KEY (hotel_id, conversation_id)
		);

		CREATE TABLE IF NOT EXISTS conv_state (
			state_key       TEXT PRIMARY KEY,
			hotel_id        TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			version         INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL,
			doc             TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS guests (
			hotel_id   TEXT NOT NULL,
			guest_id   TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			doc        TEXT NOT NULL,
			PRIMARY KEY (hotel_id, guest_id)
		);

		CREATE TABLE IF NOT EXISTS guest_keys (
			hotel_id TEXT NOT NULL,
			kind     TEXT NOT NULL,
			value    TEXT NOT NULL,
			guest_id TEXT NOT NULL,
			PRIMARY KEY (hotel_id, kind, value, guest_id)
		);

		CREATE INDEX IF NOT EXISTS idx_guest_keys_guest ON guest_keys(hotel_id, guest_id);

		CREATE TABLE IF NOT EXISTS reservations (
			res_key        TEXT PRIMARY KEY,
			hotel_id       TEXT NOT NULL,
			reservation_id TEXT NOT NULL,
			created_at     INTEGER NOT NULL,
			doc            TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS message_guards (
			guard_key       TEXT PRIMARY KEY,
			hotel_id        TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			direction       TEXT NOT NULL,
			source_msg_id   TEXT NOT NULL,
			claimed_at      INTEGER NOT NULL,
			expires_at      INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_message_guards_expires ON message_guards(expires_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "messages",
			column: "guest_id",
			apply:  `ALTER TABLE messages ADD COLUMN guest_id TEXT`,
		},
		{
			table:  "reservations",
			column: "conversation_id",
			apply:  `ALTER TABLE reservations ADD COLUMN conversation_id TEXT`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("checking %s.%s: %w", m.table, m.column, err)
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return s.migrateMessageStatuses()
}

// migrateMessageStatuses rebuilds the messages table of databases created
// before the 'failed' status existed. SQLite cannot alter a CHECK in place.
func (s *SQLiteStore) migrateMessageStatuses() error {
	var ddl string
	err := s.db.QueryRow(`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = 'messages'`).Scan(&ddl)
	if err != nil {
		return fmt.Errorf("reading messages schema: %w", err)
	}
	if strings.Contains(ddl, "'failed'") {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning status migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	steps := []string{
		`CREATE TABLE messages_rebuild (
			message_id      TEXT PRIMARY KEY,
			hotel_id        TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			direction       TEXT NOT NULL,
			status          TEXT NOT NULL,
			ts              INTEGER NOT NULL,
			doc             TEXT NOT NULL,
			guest_id        TEXT,

			CHECK (direction IN ('in', 'out')),
			CHECK (status IN ('sent', 'pending', 'rejected', 'failed'))
		)`,
		`INSERT INTO messages_rebuild (message_id, hotel_id, conversation_id, direction, status, ts, doc, guest_id)
			SELECT message_id, hotel_id, conversation_id, direction, status, ts, doc, guest_id FROM messages`,
		`DROP TABLE messages`,
		`ALTER TABLE messages_rebuild RENAME TO messages`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(hotel_id, conversation_id, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_status ON messages(hotel_id, status, ts)`,
	}
	for _, step := range steps {
		if _, err := tx.Exec(step); err != nil {
			return fmt.Errorf("rebuilding messages table: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing status migration: %w", err)
	}
	s.logger.Info("applied migration", "table", "messages", "change", "failed status")
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// unixNano returns t as nanoseconds, substituting now for the zero time
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().UnixNano()
}

func encodeDoc(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding document: %w", err)
	}
	return string(data), nil
}

func decodeDoc(doc string, v any) error {
	if err := json.Unmarshal([]byte(doc), v); err != nil {
		return fmt.Errorf("decoding document: %w", err)
	}
	return nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
