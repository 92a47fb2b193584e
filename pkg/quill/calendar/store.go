// Package calendar – store.go implements the SQLite-backed event store the
// calendar resolver searches against. Recurring events carry a standard cron
// expression expanded with robfig/cron.
package calendar

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver.
	"github.com/robfig/cron/v3"
)

// Event is one calendar entry belonging to a user.
type Event struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	Title    string    `json:"title"`
	Location string    `json:"location,omitempty"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at,omitempty"`

	// Recurrence is an optional standard 5-field cron expression. Empty means
	// one-shot.
	Recurrence string `json:"recurrence,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NextOccurrence returns the event's next start at or after t. For one-shot
// events that is StartsAt itself (zero time once passed); for recurring
// events the cron schedule is consulted.
func (e *Event) NextOccurrence(t time.Time) (time.Time, error) {
	if e.Recurrence == "" {
		if e.StartsAt.Before(t) {
			return time.Time{}, nil
		}
		return e.StartsAt, nil
	}
	sched, err := cron.ParseStandard(e.Recurrence)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse recurrence %q: %w", e.Recurrence, err)
	}
	return sched.Next(t), nil
}

// Store persists events in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

const calendarSchema = `
	CREATE TABLE IF NOT EXISTS events (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		title      TEXT NOT NULL,
		location   TEXT NOT NULL DEFAULT '',
		starts_at  TEXT NOT NULL,
		ends_at    TEXT NOT NULL DEFAULT '',
		recurrence TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_user ON events(user_id);
	CREATE INDEX IF NOT EXISTS idx_events_user_start ON events(user_id, starts_at);
`

// Open opens or creates the calendar database.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open calendar db: %w", err)
	}
	if _, err := db.Exec(calendarSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init calendar schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Save inserts or updates an event. Recurrence, when set, must parse.
func (s *Store) Save(ctx context.Context, e *Event) error {
	if e.Recurrence != "" {
		if _, err := cron.ParseStandard(e.Recurrence); err != nil {
			return fmt.Errorf("invalid recurrence %q: %w", e.Recurrence, err)
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	endsAt := ""
	if !e.EndsAt.IsZero() {
		endsAt = e.EndsAt.Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO events (id, user_id, title, location, starts_at, ends_at, recurrence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.UserID, e.Title, e.Location, e.StartsAt.Format(time.RFC3339), endsAt,
		e.Recurrence, e.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

// Get fetches one event by id, scoped to the user.
func (s *Store) Get(ctx context.Context, userID, id string) (*Event, error) {
	rows, err := s.db.QueryContext(ctx, selectEvents+" WHERE user_id = ? AND id = ?", userID, id)
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	defer rows.Close()
	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("event not found")
	}
	return &events[0], nil
}

// Delete removes one event, scoped to the user.
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM events WHERE user_id = ? AND id = ?", userID, id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

// List returns all events of a user ordered by start time.
func (s *Store) List(ctx context.Context, userID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, selectEvents+" WHERE user_id = ? ORDER BY starts_at", userID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListWindow returns the user's events starting inside [from, to).
func (s *Store) ListWindow(ctx context.Context, userID string, from, to time.Time) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		selectEvents+" WHERE user_id = ? AND starts_at >= ? AND starts_at < ? ORDER BY starts_at",
		userID, from.Format(time.RFC3339), to.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("list events window: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

const selectEvents = `
	SELECT id, user_id, title, location, starts_at, ends_at, recurrence, created_at
	FROM events`

// scanEvents reads event rows, skipping unparseable entries.
func scanEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var e Event
		var starts, ends, created string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Title, &e.Location, &starts, &ends, &e.Recurrence, &created); err != nil {
			continue
		}
		e.StartsAt, _ = time.Parse(time.RFC3339, starts)
		if ends != "" {
			e.EndsAt, _ = time.Parse(time.RFC3339, ends)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, e)
	}
	return out, rows.Err()
}
