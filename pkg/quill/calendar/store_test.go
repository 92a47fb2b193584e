// Package calendar – store_test.go exercises the event store and recurrence
// expansion.
package calendar

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "calendar.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreSaveGetRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	starts := time.Date(2025, 9, 3, 14, 30, 0, 0, time.UTC)
	e := &Event{
		UserID:   "u1",
		Title:    "Dentist appointment",
		Location: "Downtown clinic",
		StartsAt: starts,
		EndsAt:   starts.Add(time.Hour),
	}
	if err := s.Save(ctx, e); err != nil {
		t.Fatalf("save: %v", err)
	}
	if e.ID == "" {
		t.Fatal("save must assign an id")
	}

	got, err := s.Get(ctx, "u1", e.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != e.Title || got.Location != e.Location {
		t.Errorf("round trip lost data: %+v", got)
	}
	if !got.StartsAt.Equal(starts) {
		t.Errorf("got starts_at %v, want %v", got.StartsAt, starts)
	}

	if _, err := s.Get(ctx, "someone-else", e.ID); err == nil {
		t.Error("events must be scoped to their user")
	}
}

func TestStoreRejectsInvalidRecurrence(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	e := &Event{UserID: "u1", Title: "Standup", Recurrence: "not a cron expr"}
	if err := s.Save(context.Background(), e); err == nil {
		t.Error("expected an error for an unparseable recurrence")
	}
}

func TestStoreListWindow(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)
	for i, title := range []string{"Monday sync", "Wednesday review", "Friday demo"} {
		e := &Event{
			UserID:   "u1",
			Title:    title,
			StartsAt: base.AddDate(0, 0, 2*i),
		}
		if err := s.Save(ctx, e); err != nil {
			t.Fatalf("save %q: %v", title, err)
		}
	}

	// [Monday, Thursday) covers the first two events only.
	got, err := s.ListWindow(ctx, "u1", base, base.AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("list window: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Title != "Monday sync" || got[1].Title != "Wednesday review" {
		t.Errorf("got %q, %q; want window events in start order", got[0].Title, got[1].Title)
	}
}

func TestStoreListOrdersByStart(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)
	for _, e := range []*Event{
		{UserID: "u1", Title: "Later", StartsAt: base.Add(5 * time.Hour)},
		{UserID: "u1", Title: "Sooner", StartsAt: base},
	} {
		if err := s.Save(ctx, e); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	got, err := s.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Title != "Sooner" {
		t.Errorf("events not ordered by start time: %+v", got)
	}
}

func TestNextOccurrenceOneShot(t *testing.T) {
	t.Parallel()

	starts := time.Date(2025, 9, 3, 14, 30, 0, 0, time.UTC)
	e := &Event{Title: "Dentist", StartsAt: starts}

	next, err := e.NextOccurrence(starts.Add(-time.Hour))
	if err != nil {
		t.Fatalf("next occurrence: %v", err)
	}
	if !next.Equal(starts) {
		t.Errorf("got %v, want %v", next, starts)
	}

	next, err = e.NextOccurrence(starts.Add(time.Hour))
	if err != nil {
		t.Fatalf("next occurrence: %v", err)
	}
	if !next.IsZero() {
		t.Errorf("a passed one-shot event has no next occurrence, got %v", next)
	}
}

func TestNextOccurrenceRecurring(t *testing.T) {
	t.Parallel()

	// Every Monday at 09:00.
	e := &Event{Title: "Weekly sync", Recurrence: "0 9 * * 1"}

	// 2025-09-03 is a Wednesday; the next Monday is the 8th.
	from := time.Date(2025, 9, 3, 12, 0, 0, 0, time.UTC)
	next, err := e.NextOccurrence(from)
	if err != nil {
		t.Fatalf("next occurrence: %v", err)
	}
	want := time.Date(2025, 9, 8, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("got %v, want %v", next, want)
	}
}

func TestNextOccurrenceBadRecurrence(t *testing.T) {
	t.Parallel()

	e := &Event{Title: "Broken", Recurrence: "* * *"}
	if _, err := e.NextOccurrence(time.Now()); err == nil {
		t.Error("expected an error for a malformed cron expression")
	}
}
