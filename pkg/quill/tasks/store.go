// Package tasks – store.go implements the SQLite-backed task/list store the
// tasks resolver searches against.
package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// Task is one to-do item, optionally grouped under a named list.
type Task struct {
	ID       string     `json:"id"`
	UserID   string     `json:"user_id"`
	ListName string     `json:"list_name,omitempty"`
	Title    string     `json:"title"`
	Done     bool       `json:"done"`
	DueAt    *time.Time `json:"due_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists tasks in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

const tasksSchema = `
	CREATE TABLE IF NOT EXISTS tasks (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		list_name  TEXT NOT NULL DEFAULT '',
		title      TEXT NOT NULL,
		done       INTEGER NOT NULL DEFAULT 0,
		due_at     TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_user_list ON tasks(user_id, list_name);
`

// Open opens or creates the tasks database.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open tasks db: %w", err)
	}
	if _, err := db.Exec(tasksSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init tasks schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Save inserts or updates a task.
func (s *Store) Save(ctx context.Context, t *Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	due := ""
	if t.DueAt != nil {
		due = t.DueAt.Format(time.RFC3339)
	}
	done := 0
	if t.Done {
		done = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO tasks (id, user_id, list_name, title, done, due_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.UserID, t.ListName, t.Title, done, due,
		t.CreatedAt.Format(time.RFC3339), t.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// Get fetches one task by id, scoped to the user.
func (s *Store) Get(ctx context.Context, userID, id string) (*Task, error) {
	rows, err := s.db.QueryContext(ctx, selectTasks+" WHERE user_id = ? AND id = ?", userID, id)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	defer rows.Close()
	ts, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(ts) == 0 {
		return nil, fmt.Errorf("task not found")
	}
	return &ts[0], nil
}

// Delete removes one task, scoped to the user.
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM tasks WHERE user_id = ? AND id = ?", userID, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// List returns the user's tasks, optionally scoped to one list.
func (s *Store) List(ctx context.Context, userID, listName string) ([]Task, error) {
	query := selectTasks + " WHERE user_id = ?"
	args := []any{userID}
	if listName != "" {
		query += " AND list_name = ?"
		args = append(args, listName)
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListCompleted returns the user's completed tasks, optionally scoped to one
// list. Used by the bulk clear-completed action.
func (s *Store) ListCompleted(ctx context.Context, userID, listName string) ([]Task, error) {
	query := selectTasks + " WHERE user_id = ? AND done = 1"
	args := []any{userID}
	if listName != "" {
		query += " AND list_name = ?"
		args = append(args, listName)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list completed tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

const selectTasks = `
	SELECT id, user_id, list_name, title, done, due_at, created_at, updated_at
	FROM tasks`

// scanTasks reads task rows, skipping unparseable entries.
func scanTasks(rows *sql.Rows) ([]Task, error) {
	var out []Task
	for rows.Next() {
		var t Task
		var done int
		var due, created, updated string
		if err := rows.Scan(&t.ID, &t.UserID, &t.ListName, &t.Title, &done, &due, &created, &updated); err != nil {
			continue
		}
		t.Done = done != 0
		if due != "" {
			if d, err := time.Parse(time.RFC3339, due); err == nil {
				t.DueAt = &d
			}
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339, created)
		t.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		out = append(out, t)
	}
	return out, rows.Err()
}
