// Package sqlite provides a SQLite-backed storage driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/relay/pkg/chat"
	"github.com/papercomputeco/relay/pkg/storage"
)

// Driver implements storage.Driver using SQLite via database/sql.
type Driver struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS threads (
	thread_id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	thread_id TEXT NOT NULL REFERENCES threads(thread_id) ON DELETE CASCADE,
	role TEXT NOT NULL CHECK(role IN ('user','assistant')),
	content TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, id);
`

// NewDriver creates a new SQLite-backed driver.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewDriver(dbPath string) (*Driver, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite-specific pragmas
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Driver{db: db}, nil
}

// LoadOrCreate returns the thread with the given id, inserting an empty
// thread titled seedTitle when absent.
func (s *Driver) LoadOrCreate(ctx context.Context, threadID, seedTitle string) (*chat.Thread, error) {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO threads(thread_id, title, updated_at) VALUES(?, ?, ?)
ON CONFLICT(thread_id) DO NOTHING`,
		threadID, seedTitle, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("creating thread: %w", err)
	}

	return s.Get(ctx, threadID)
}

// AppendMessage appends a message to the thread and updates its UpdatedAt.
func (s *Driver) AppendMessage(ctx context.Context, threadID string, msg chat.Message) (*chat.Thread, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning append: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE threads SET updated_at = ? WHERE thread_id = ?`,
		time.Now().UTC(), threadID)
	if err != nil {
		return nil, fmt.Errorf("touching thread: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, storage.NotFoundError{ThreadID: threadID}
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO messages(thread_id, role, content, created_at) VALUES(?, ?, ?, ?)`,
		threadID, msg.Role, msg.Content, msg.Timestamp.UTC()); err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing append: %w", err)
	}

	return s.Get(ctx, threadID)
}

// List returns thread summaries, most recently updated first.
func (s *Driver) List(ctx context.Context) ([]chat.ThreadSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT thread_id, title FROM threads ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	defer rows.Close()

	var summaries []chat.ThreadSummary
	for rows.Next() {
		var s chat.ThreadSummary
		if err := rows.Scan(&s.ThreadID, &s.Title); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

// Get retrieves a thread with its messages in insertion order.
func (s *Driver) Get(ctx context.Context, threadID string) (*chat.Thread, error) {
	t := &chat.Thread{ThreadID: threadID, Messages: []chat.Message{}}

	row := s.db.QueryRowContext(ctx, `
SELECT title, updated_at FROM threads WHERE thread_id = ?`, threadID)
	if err := row.Scan(&t.Title, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.NotFoundError{ThreadID: threadID}
		}
		return nil, fmt.Errorf("loading thread: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT role, content, created_at FROM messages WHERE thread_id = ? ORDER BY id`, threadID)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m chat.Message
		if err := rows.Scan(&m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		t.Messages = append(t.Messages, m)
	}

	return t, rows.Err()
}

// Delete removes a thread and its messages.
func (s *Driver) Delete(ctx context.Context, threadID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE thread_id = ?`, threadID)
	if err != nil {
		return fmt.Errorf("deleting thread: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.NotFoundError{ThreadID: threadID}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Driver) Close() error {
	return s.db.Close()
}
