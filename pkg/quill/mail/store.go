// Package mail – store.go implements a SQLite-backed local message index the
// mail resolver searches against. A real mail provider syncs messages into
// this index; the resolver only ever reads it.
package mail

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// Message is one indexed mail message belonging to a user.
type Message struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Folder     string    `json:"folder"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	Snippet    string    `json:"snippet,omitempty"`
	Read       bool      `json:"read"`
	ReceivedAt time.Time `json:"received_at"`
}

// SearchText is the text the matcher ranks: sender, subject, and snippet.
func (m *Message) SearchText() string {
	return strings.TrimSpace(m.From + " " + m.Subject + " " + m.Snippet)
}

// Store persists the message index in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

const mailSchema = `
	CREATE TABLE IF NOT EXISTS messages (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		folder      TEXT NOT NULL DEFAULT 'inbox',
		sender      TEXT NOT NULL,
		subject     TEXT NOT NULL,
		snippet     TEXT NOT NULL DEFAULT '',
		read        INTEGER NOT NULL DEFAULT 0,
		received_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id);
	CREATE INDEX IF NOT EXISTS idx_messages_user_folder ON messages(user_id, folder);
`

// Open opens or creates the mail index database.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open mail db: %w", err)
	}
	if _, err := db.Exec(mailSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init mail schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Save inserts or updates a message in the index.
func (s *Store) Save(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Folder == "" {
		m.Folder = "inbox"
	}
	if m.ReceivedAt.IsZero() {
		m.ReceivedAt = time.Now().UTC()
	}
	read := 0
	if m.Read {
		read = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO messages (id, user_id, folder, sender, subject, snippet, read, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.UserID, m.Folder, m.From, m.Subject, m.Snippet, read, m.ReceivedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// Get fetches one message by id, scoped to the user.
func (s *Store) Get(ctx context.Context, userID, id string) (*Message, error) {
	rows, err := s.db.QueryContext(ctx, selectMessages+" WHERE user_id = ? AND id = ?", userID, id)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	defer rows.Close()
	ms, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	if len(ms) == 0 {
		return nil, fmt.Errorf("message not found")
	}
	return &ms[0], nil
}

// Delete removes one message from the index, scoped to the user.
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM messages WHERE user_id = ? AND id = ?", userID, id); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// List returns the user's messages, optionally scoped to one folder, newest
// first.
func (s *Store) List(ctx context.Context, userID, folder string) ([]Message, error) {
	query := selectMessages + " WHERE user_id = ?"
	args := []any{userID}
	if folder != "" {
		query += " AND folder = ?"
		args = append(args, folder)
	}
	query += " ORDER BY received_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

const selectMessages = `
	SELECT id, user_id, folder, sender, subject, snippet, read, received_at
	FROM messages`

// scanMessages reads message rows, skipping unparseable entries.
func scanMessages(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var m Message
		var read int
		var received string
		if err := rows.Scan(&m.ID, &m.UserID, &m.Folder, &m.From, &m.Subject, &m.Snippet, &read, &received); err != nil {
			continue
		}
		m.Read = read != 0
		m.ReceivedAt, _ = time.Parse(time.RFC3339, received)
		out = append(out, m)
	}
	return out, rows.Err()
}
