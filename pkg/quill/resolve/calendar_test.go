// Package resolve – calendar_test.go exercises the calendar resolver against
// a fake event source.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/quillhq/quill/pkg/quill/calendar"
	"github.com/quillhq/quill/pkg/quill/plan"
)

type fakeEventSource struct {
	events []calendar.Event
	err    error
	calls  int
}

func (f *fakeEventSource) List(_ context.Context, _ string) ([]calendar.Event, error) {
	f.calls++
	return f.events, f.err
}

func (f *fakeEventSource) ListWindow(_ context.Context, _ string, from, to time.Time) ([]calendar.Event, error) {
	f.calls++
	var out []calendar.Event
	for _, e := range f.events {
		if !e.StartsAt.Before(from) && e.StartsAt.Before(to) {
			out = append(out, e)
		}
	}
	return out, f.err
}

func testContext() Context {
	return Context{UserID: "u1", Now: time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)}
}

func calendarStep(action, query string) (string, plan.Arguments) {
	return action, plan.Arguments{Calendar: &plan.CalendarArgs{Query: query}}
}

func TestCalendarResolveAutoResolvesClearWinner(t *testing.T) {
	t.Parallel()

	src := &fakeEventSource{events: []calendar.Event{
		{ID: "ev1", UserID: "u1", Title: "Dentist appointment"},
		{ID: "ev2", UserID: "u1", Title: "Dentist follow-up"},
	}}
	r := NewCalendarResolver(src, DefaultConfig(), nil)

	action, args := calendarStep("delete", "dentist appointment")
	out, err := r.Resolve(context.Background(), testContext(), action, args)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Kind != KindResolved {
		t.Fatalf("got kind %q, want resolved", out.Kind)
	}
	if len(out.ResolvedIDs) != 1 || out.ResolvedIDs[0] != "ev1" {
		t.Errorf("got ids %v, want [ev1]", out.ResolvedIDs)
	}
	if got := out.Args.Calendar.EventIDs; len(got) != 1 || got[0] != "ev1" {
		t.Errorf("args not updated: got %v, want [ev1]", got)
	}
}

func TestCalendarResolveAmbiguousAsksOnce(t *testing.T) {
	t.Parallel()

	src := &fakeEventSource{events: []calendar.Event{
		{ID: "ev1", UserID: "u1", Title: "Dentist appointment"},
		{ID: "ev2", UserID: "u1", Title: "Dentist follow-up"},
	}}
	r := NewCalendarResolver(src, DefaultConfig(), nil)

	action, args := calendarStep("delete", "dentist")
	out, err := r.Resolve(context.Background(), testContext(), action, args)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Kind != KindDisambiguation {
		t.Fatalf("got kind %q, want disambiguation", out.Kind)
	}
	if len(out.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(out.Candidates))
	}
	if out.AllowMultiple {
		t.Error("delete is a single-entity action, AllowMultiple must be false")
	}
	for i := 1; i < len(out.Candidates); i++ {
		if out.Candidates[i].Score > out.Candidates[i-1].Score {
			t.Errorf("candidates not in descending score order at %d", i)
		}
	}
}

func TestCalendarRecurringCandidateShowsNextOccurrence(t *testing.T) {
	t.Parallel()

	// testContext's Now is Monday 2025-09-01 09:00 UTC; the next Monday 09:00
	// strictly after that is 2025-09-08.
	src := &fakeEventSource{events: []calendar.Event{
		{ID: "ev1", UserID: "u1", Title: "Team standup", Recurrence: "0 9 * * 1"},
		{ID: "ev2", UserID: "u1", Title: "Design standup"},
	}}
	r := NewCalendarResolver(src, DefaultConfig(), nil)

	action, args := calendarStep("delete", "standup")
	out, err := r.Resolve(context.Background(), testContext(), action, args)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Kind != KindDisambiguation {
		t.Fatalf("got kind %q, want disambiguation", out.Kind)
	}
	for _, c := range out.Candidates {
		if c.ID != "ev1" {
			continue
		}
		if !strings.Contains(c.DisplayText, "Sep 8 09:00") {
			t.Errorf("recurring candidate %q does not show its next occurrence", c.DisplayText)
		}
		return
	}
	t.Fatal("recurring event missing from candidates")
}

func TestCalendarResolveCapsCandidates(t *testing.T) {
	t.Parallel()

	var events []calendar.Event
	for i := 0; i < 7; i++ {
		events = append(events, calendar.Event{
			ID:     fmt.Sprintf("ev%d", i),
			UserID: "u1",
			Title:  fmt.Sprintf("Project sync %c", 'A'+i),
		})
	}
	r := NewCalendarResolver(&fakeEventSource{events: events}, DefaultConfig(), nil)

	action, args := calendarStep("update", "project sync")
	out, err := r.Resolve(context.Background(), testContext(), action, args)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Kind != KindDisambiguation {
		t.Fatalf("got kind %q, want disambiguation", out.Kind)
	}
	if len(out.Candidates) != 5 {
		t.Errorf("got %d candidates, want cap of 5", len(out.Candidates))
	}
}

func TestCalendarResolveIdempotentWhenIDsPresent(t *testing.T) {
	t.Parallel()

	src := &fakeEventSource{}
	r := NewCalendarResolver(src, DefaultConfig(), nil)

	args := plan.Arguments{Calendar: &plan.CalendarArgs{EventIDs: []string{"ev9"}}}
	out, err := r.Resolve(context.Background(), testContext(), "delete", args)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Kind != KindResolved {
		t.Fatalf("got kind %q, want resolved", out.Kind)
	}
	if len(out.ResolvedIDs) != 1 || out.ResolvedIDs[0] != "ev9" {
		t.Errorf("got ids %v, want [ev9]", out.ResolvedIDs)
	}
	if src.calls != 0 {
		t.Errorf("already-resolved arguments must not hit the source, got %d calls", src.calls)
	}
}

func TestCalendarResolvePureCreatePassesThrough(t *testing.T) {
	t.Parallel()

	src := &fakeEventSource{}
	r := NewCalendarResolver(src, DefaultConfig(), nil)

	args := plan.Arguments{Calendar: &plan.CalendarArgs{Title: "Lunch with Ana"}}
	out, err := r.Resolve(context.Background(), testContext(), "create", args)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Kind != KindResolved {
		t.Fatalf("got kind %q, want resolved", out.Kind)
	}
	if src.calls != 0 {
		t.Errorf("create must not hit the source, got %d calls", src.calls)
	}
}

func TestCalendarResolveNotFoundOffersSuggestions(t *testing.T) {
	t.Parallel()

	src := &fakeEventSource{events: []calendar.Event{
		{ID: "ev1", UserID: "u1", Title: "Team standup"},
		{ID: "ev2", UserID: "u1", Title: "Dentist appointment"},
		{ID: "ev3", UserID: "u1", Title: "Gym session"},
		{ID: "ev4", UserID: "u1", Title: "Flight to Lisbon"},
	}}
	r := NewCalendarResolver(src, DefaultConfig(), nil)

	action, args := calendarStep("delete", "budget review")
	out, err := r.Resolve(context.Background(), testContext(), action, args)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Kind != KindNotFound {
		t.Fatalf("got kind %q, want not_found", out.Kind)
	}
	if out.SearchedFor != "budget review" {
		t.Errorf("got searched_for %q, want the original query", out.SearchedFor)
	}
	if len(out.Suggestions) != 3 {
		t.Errorf("got %d suggestions, want 3", len(out.Suggestions))
	}
}

func TestCalendarResolveEmptyQueryAsksForClarification(t *testing.T) {
	t.Parallel()

	r := NewCalendarResolver(&fakeEventSource{}, DefaultConfig(), nil)

	out, err := r.Resolve(context.Background(), testContext(), "delete", plan.Arguments{Calendar: &plan.CalendarArgs{}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Kind != KindClarifyQuery {
		t.Errorf("got kind %q, want clarify_query", out.Kind)
	}
}

func TestCalendarResolveLookupFailureIsNotFound(t *testing.T) {
	t.Parallel()

	src := &fakeEventSource{err: errors.New("provider unavailable")}
	r := NewCalendarResolver(src, DefaultConfig(), nil)

	action, args := calendarStep("delete", "dentist")
	out, err := r.Resolve(context.Background(), testContext(), action, args)
	if err != nil {
		t.Fatalf("lookup failure must degrade, not error: %v", err)
	}
	if out.Kind != KindNotFound {
		t.Errorf("got kind %q, want not_found", out.Kind)
	}
}

func TestCalendarResolveMissingArgsErrors(t *testing.T) {
	t.Parallel()

	r := NewCalendarResolver(&fakeEventSource{}, DefaultConfig(), nil)
	if _, err := r.Resolve(context.Background(), testContext(), "delete", plan.Arguments{}); err == nil {
		t.Error("expected an error for a step without calendar arguments")
	}
}

func TestCalendarResolveWindowScopesSearch(t *testing.T) {
	t.Parallel()

	now := testContext().Now
	src := &fakeEventSource{events: []calendar.Event{
		{ID: "ev1", UserID: "u1", Title: "Dentist appointment", StartsAt: now.Add(2 * time.Hour)},
		{ID: "ev2", UserID: "u1", Title: "Dentist follow-up", StartsAt: now.Add(48 * time.Hour)},
	}}
	r := NewCalendarResolver(src, DefaultConfig(), nil)

	from, to := now, now.Add(24*time.Hour)
	args := plan.Arguments{Calendar: &plan.CalendarArgs{
		Query:       "dentist",
		WindowStart: &from,
		WindowEnd:   &to,
	}}
	out, err := r.Resolve(context.Background(), testContext(), "delete_window", args)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// Only ev1 falls inside the window, so the reference is unambiguous.
	if out.Kind != KindResolved {
		t.Fatalf("got kind %q, want resolved", out.Kind)
	}
	if len(out.ResolvedIDs) != 1 || out.ResolvedIDs[0] != "ev1" {
		t.Errorf("got ids %v, want [ev1]", out.ResolvedIDs)
	}
}

func TestCalendarApplySelectionResolvesChoice(t *testing.T) {
	t.Parallel()

	r := NewCalendarResolver(&fakeEventSource{}, DefaultConfig(), nil)
	p := &PendingClarification{
		UserID: "u1",
		Domain: plan.CapabilityCalendar,
		Candidates: []Candidate{
			{ID: "ev1", DisplayText: "Dentist appointment"},
			{ID: "ev2", DisplayText: "Dentist follow-up"},
		},
		OriginAction: "delete",
		OriginalArgs: plan.Arguments{Calendar: &plan.CalendarArgs{Query: "dentist"}},
		Question:     "which event did you mean?",
	}

	out, err := r.ApplySelection(context.Background(), testContext(), Selection{Indices: []int{2}}, p)
	if err != nil {
		t.Fatalf("apply selection: %v", err)
	}
	if out.Kind != KindResolved {
		t.Fatalf("got kind %q, want resolved", out.Kind)
	}
	if len(out.ResolvedIDs) != 1 || out.ResolvedIDs[0] != "ev2" {
		t.Errorf("got ids %v, want [ev2]", out.ResolvedIDs)
	}
	if p.OriginalArgs.Calendar.EventIDs != nil {
		t.Error("pending record's original arguments must stay untouched")
	}
}

func TestCalendarApplySelectionInvalidReoffersSameCandidates(t *testing.T) {
	t.Parallel()

	r := NewCalendarResolver(&fakeEventSource{}, DefaultConfig(), nil)
	p := &PendingClarification{
		UserID: "u1",
		Domain: plan.CapabilityCalendar,
		Candidates: []Candidate{
			{ID: "ev1", DisplayText: "Dentist appointment"},
			{ID: "ev2", DisplayText: "Dentist follow-up"},
		},
		OriginalArgs: plan.Arguments{Calendar: &plan.CalendarArgs{Query: "dentist"}},
		Question:     "which event did you mean?",
	}

	out, err := r.ApplySelection(context.Background(), testContext(), Selection{Indices: []int{7}}, p)
	if err != nil {
		t.Fatalf("apply selection: %v", err)
	}
	if out.Kind != KindDisambiguation {
		t.Fatalf("got kind %q, want disambiguation (never a default pick)", out.Kind)
	}
	if len(out.Candidates) != 2 || out.Candidates[0].ID != "ev1" || out.Candidates[1].ID != "ev2" {
		t.Error("re-offered candidates must be identical to the original set")
	}
	if out.Question != p.Question {
		t.Errorf("got question %q, want the original %q", out.Question, p.Question)
	}
}

func TestCalendarResolveThenSelectRoundTrip(t *testing.T) {
	t.Parallel()

	src := &fakeEventSource{events: []calendar.Event{
		{ID: "ev1", UserID: "u1", Title: "Dentist appointment"},
		{ID: "ev2", UserID: "u1", Title: "Dentist follow-up"},
	}}
	r := NewCalendarResolver(src, DefaultConfig(), nil)

	action, args := calendarStep("delete", "dentist")
	first, err := r.Resolve(context.Background(), testContext(), action, args)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if first.Kind != KindDisambiguation {
		t.Fatalf("got kind %q, want disambiguation", first.Kind)
	}

	p := &PendingClarification{
		UserID:        "u1",
		Domain:        plan.CapabilityCalendar,
		Candidates:    first.Candidates,
		AllowMultiple: first.AllowMultiple,
		OriginAction:  action,
		OriginalArgs:  args,
		Question:      first.Question,
	}
	second, err := r.ApplySelection(context.Background(), testContext(), Selection{Indices: []int{1}}, p)
	if err != nil {
		t.Fatalf("apply selection: %v", err)
	}
	if second.Kind != KindResolved {
		t.Fatalf("got kind %q, want resolved", second.Kind)
	}
	if got := second.Args.Calendar.EventIDs; len(got) != 1 || got[0] != first.Candidates[0].ID {
		t.Errorf("got ids %v, want the first offered candidate", got)
	}
}
