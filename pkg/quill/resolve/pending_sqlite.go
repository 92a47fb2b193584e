// Package resolve – pending_sqlite.go implements the SQLite-backed ledger so
// a clarification asked in one process instance can be answered in another.
// Expiry is enforced lazily on read and by a periodic cron sweep.
package resolve

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.
	"github.com/robfig/cron/v3"
)

// SQLiteLedger persists pending clarifications keyed by user.
type SQLiteLedger struct {
	db     *sql.DB
	ttl    time.Duration
	logger *slog.Logger

	sweeper *cron.Cron
}

const ledgerSchema = `
	CREATE TABLE IF NOT EXISTS pending_clarifications (
		user_id    TEXT PRIMARY KEY,
		payload    TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
`

// OpenSQLiteLedger opens or creates the ledger database.
func OpenSQLiteLedger(dbPath string, ttl time.Duration, logger *slog.Logger) (*SQLiteLedger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultConfig().ClarificationTTL
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init ledger schema: %w", err)
	}
	return &SQLiteLedger{db: db, ttl: ttl, logger: logger}, nil
}

// Close stops the sweeper and closes the database.
func (l *SQLiteLedger) Close() error {
	l.StopSweeper()
	return l.db.Close()
}

// Put stores the user's pending clarification, replacing any prior one.
func (l *SQLiteLedger) Put(ctx context.Context, p *PendingClarification) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal clarification: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO pending_clarifications (user_id, payload, created_at)
		VALUES (?, ?, ?)
	`, p.UserID, string(payload), p.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store clarification: %w", err)
	}
	return nil
}

// Get returns the user's outstanding clarification. An expired record is
// deleted and reported as ErrNoPending.
func (l *SQLiteLedger) Get(ctx context.Context, userID string) (*PendingClarification, error) {
	var payload, created string
	err := l.db.QueryRowContext(ctx,
		"SELECT payload, created_at FROM pending_clarifications WHERE user_id = ?",
		userID).Scan(&payload, &created)
	if err == sql.ErrNoRows {
		return nil, ErrNoPending
	}
	if err != nil {
		return nil, fmt.Errorf("load clarification: %w", err)
	}

	var p PendingClarification
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("unmarshal clarification: %w", err)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt, _ = time.Parse(time.RFC3339, created)
	}

	if p.Expired(time.Now().UTC(), l.ttl) {
		_ = l.Clear(ctx, userID)
		return nil, ErrNoPending
	}
	return &p, nil
}

// Clear removes the user's pending clarification, if any.
func (l *SQLiteLedger) Clear(ctx context.Context, userID string) error {
	if _, err := l.db.ExecContext(ctx,
		"DELETE FROM pending_clarifications WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("clear clarification: %w", err)
	}
	return nil
}

// StartSweeper begins a periodic cleanup of expired records. Lazy expiry on
// Get already guarantees correctness; the sweep just keeps the table small in
// long-running serve mode.
func (l *SQLiteLedger) StartSweeper(interval time.Duration) error {
	if l.sweeper != nil {
		return nil
	}
	if interval <= 0 {
		interval = time.Minute
	}

	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), l.sweep)
	if err != nil {
		return fmt.Errorf("schedule ledger sweep: %w", err)
	}
	c.Start()
	l.sweeper = c
	return nil
}

// StopSweeper halts the periodic cleanup.
func (l *SQLiteLedger) StopSweeper() {
	if l.sweeper != nil {
		l.sweeper.Stop()
		l.sweeper = nil
	}
}

// sweep deletes every record older than the TTL.
func (l *SQLiteLedger) sweep() {
	cutoff := time.Now().UTC().Add(-l.ttl).Format(time.RFC3339)
	res, err := l.db.Exec("DELETE FROM pending_clarifications WHERE created_at < ?", cutoff)
	if err != nil {
		l.logger.Warn("ledger sweep failed", "error", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		l.logger.Debug("swept expired clarifications", "count", n)
	}
}
