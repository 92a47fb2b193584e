// Package resolve – pending_sqlite_test.go exercises the SQLite ledger: TTL
// expiry and persistence across reopen.
package resolve

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/quillhq/quill/pkg/quill/plan"
)

func testPending(userID string, createdAt time.Time) *PendingClarification {
	return &PendingClarification{
		UserID: userID,
		Domain: plan.CapabilityCalendar,
		Candidates: []Candidate{
			{ID: "ev1", DisplayText: "Dentist appointment"},
			{ID: "ev2", DisplayText: "Dentist follow-up"},
		},
		OriginStepID: "s1",
		OriginAction: "delete",
		OriginalArgs: plan.Arguments{Calendar: &plan.CalendarArgs{Query: "dentist"}},
		Question:     "which event did you mean?",
		CreatedAt:    createdAt,
	}
}

func TestSQLiteLedgerPutGetClear(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	l, err := OpenSQLiteLedger(dbPath, 5*time.Minute, nil)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer l.Close()

	ctx := context.Background()
	if err := l.Put(ctx, testPending("u1", time.Now().UTC())); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := l.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.OriginStepID != "s1" || len(got.Candidates) != 2 {
		t.Errorf("round trip lost data: %+v", got)
	}
	if got.OriginalArgs.Calendar == nil || got.OriginalArgs.Calendar.Query != "dentist" {
		t.Error("original arguments did not survive the round trip")
	}

	if _, err := l.Get(ctx, "someone-else"); !errors.Is(err, ErrNoPending) {
		t.Errorf("other user: got %v, want ErrNoPending", err)
	}

	if err := l.Clear(ctx, "u1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := l.Get(ctx, "u1"); !errors.Is(err, ErrNoPending) {
		t.Errorf("after clear: got %v, want ErrNoPending", err)
	}
}

func TestSQLiteLedgerReplacesPriorClarification(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	l, err := OpenSQLiteLedger(dbPath, 5*time.Minute, nil)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer l.Close()

	ctx := context.Background()
	first := testPending("u1", time.Now().UTC())
	if err := l.Put(ctx, first); err != nil {
		t.Fatalf("put first: %v", err)
	}
	second := testPending("u1", time.Now().UTC())
	second.OriginStepID = "s2"
	if err := l.Put(ctx, second); err != nil {
		t.Fatalf("put second: %v", err)
	}

	got, err := l.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.OriginStepID != "s2" {
		t.Errorf("got origin step %q, want the replacement s2", got.OriginStepID)
	}
}

func TestSQLiteLedgerExpiresOldRecords(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	l, err := OpenSQLiteLedger(dbPath, 5*time.Minute, nil)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer l.Close()

	ctx := context.Background()
	stale := testPending("u1", time.Now().UTC().Add(-10*time.Minute))
	if err := l.Put(ctx, stale); err != nil {
		t.Fatalf("put: %v", err)
	}

	if _, err := l.Get(ctx, "u1"); !errors.Is(err, ErrNoPending) {
		t.Errorf("expired record: got %v, want ErrNoPending", err)
	}
}

func TestSQLiteLedgerSurvivesReopen(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	l, err := OpenSQLiteLedger(dbPath, 5*time.Minute, nil)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}

	ctx := context.Background()
	if err := l.Put(ctx, testPending("u1", time.Now().UTC())); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A clarification asked before a restart is still answerable after it.
	reopened, err := OpenSQLiteLedger(dbPath, 5*time.Minute, nil)
	if err != nil {
		t.Fatalf("reopen ledger: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.OriginStepID != "s1" || got.Question == "" {
		t.Errorf("reopened record incomplete: %+v", got)
	}
}

func TestSQLiteLedgerSweepRemovesExpired(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	l, err := OpenSQLiteLedger(dbPath, 5*time.Minute, nil)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer l.Close()

	ctx := context.Background()
	if err := l.Put(ctx, testPending("stale", time.Now().UTC().Add(-10*time.Minute))); err != nil {
		t.Fatalf("put stale: %v", err)
	}
	if err := l.Put(ctx, testPending("fresh", time.Now().UTC())); err != nil {
		t.Fatalf("put fresh: %v", err)
	}

	l.sweep()

	if _, err := l.Get(ctx, "stale"); !errors.Is(err, ErrNoPending) {
		t.Errorf("stale record: got %v, want ErrNoPending", err)
	}
	if _, err := l.Get(ctx, "fresh"); err != nil {
		t.Errorf("fresh record swept by mistake: %v", err)
	}
}
