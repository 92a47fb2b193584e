// Package resolve – calendar.go implements the calendar domain resolver.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quillhq/quill/pkg/quill/calendar"
	"github.com/quillhq/quill/pkg/quill/plan"
)

// Calendar actions that reference an existing event. Everything else (pure
// creates) short-circuits to Resolved.
var calendarEntityActions = map[string]bool{
	"update":        true,
	"delete":        true,
	"get":           true,
	"delete_window": true,
}

// calendarBulkActions may act on several events at once.
var calendarBulkActions = map[string]bool{
	"delete_window": true,
}

// EventSource lists a user's calendar events. Implemented by *calendar.Store
// and by provider adapters.
type EventSource interface {
	List(ctx context.Context, userID string) ([]calendar.Event, error)
	ListWindow(ctx context.Context, userID string, from, to time.Time) ([]calendar.Event, error)
}

// CalendarResolver resolves free-text event references against an EventSource.
type CalendarResolver struct {
	events EventSource
	cfg    Config
	logger *slog.Logger
}

// NewCalendarResolver creates the calendar resolver.
func NewCalendarResolver(events EventSource, cfg Config, logger *slog.Logger) *CalendarResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CalendarResolver{events: events, cfg: cfg.normalized(), logger: logger}
}

// Capability returns the calendar capability tag.
func (r *CalendarResolver) Capability() plan.Capability { return plan.CapabilityCalendar }

// Resolve implements the uniform resolution algorithm for calendar steps.
func (r *CalendarResolver) Resolve(ctx context.Context, rc Context, action string, args plan.Arguments) (Outcome, error) {
	ca := args.Calendar
	if ca == nil {
		return Outcome{}, fmt.Errorf("calendar resolver: missing calendar arguments for action %q", action)
	}
	if !calendarEntityActions[action] {
		// Pure create (or list) — nothing to resolve.
		return Resolved(args), nil
	}
	if len(ca.EventIDs) > 0 {
		// Already resolved: resolving twice is a no-op.
		return Resolved(args, ca.EventIDs...), nil
	}

	query := ca.Query
	if query == "" {
		query = ca.Title
	}
	if query == "" {
		return ClarifyQuery("which event? no reference text was given", nil), nil
	}

	events, err := r.listEvents(ctx, rc, ca)
	if err != nil {
		// A failed lookup surfaces as "no match", never as a crash.
		r.logger.Warn("calendar lookup failed", "user", rc.UserID, "error", err)
		events = nil
	}

	ids := make([]string, len(events))
	texts := make([]string, len(events))
	entities := make([]any, len(events))
	for i, e := range events {
		ids[i] = e.ID
		texts[i] = formatEvent(e, rc.Now)
		entities[i] = e
	}

	ranked := rankEntities(query, ids, texts, entities)
	return decide(r.cfg, query, ranked, ids, texts,
		calendarBulkActions[action], "which event did you mean?",
		func(chosen []string) Outcome { return finishCalendar(args, chosen) }), nil
}

// ApplySelection routes a parsed choice back into resolved calendar arguments.
func (r *CalendarResolver) ApplySelection(_ context.Context, _ Context, sel Selection, p *PendingClarification) (Outcome, error) {
	return applyIndexSelection(sel, p, func(chosen []string) Outcome {
		return finishCalendar(p.OriginalArgs, chosen)
	}), nil
}

// listEvents scopes the search to the step's time window when one is given.
func (r *CalendarResolver) listEvents(ctx context.Context, rc Context, ca *plan.CalendarArgs) ([]calendar.Event, error) {
	if ca.WindowStart != nil && ca.WindowEnd != nil {
		return r.events.ListWindow(ctx, rc.UserID, *ca.WindowStart, *ca.WindowEnd)
	}
	return r.events.List(ctx, rc.UserID)
}

// finishCalendar writes the chosen event ids into a copy of the arguments.
func finishCalendar(args plan.Arguments, ids []string) Outcome {
	ca := *args.Calendar
	ca.EventIDs = ids
	args.Calendar = &ca
	return Resolved(args, ids...)
}

// formatEvent renders an event for candidate display. Recurring events show
// their next occurrence after now instead of the stored start.
func formatEvent(e calendar.Event, now time.Time) string {
	s := e.Title
	starts := e.StartsAt
	if e.Recurrence != "" {
		if next, err := e.NextOccurrence(now); err == nil && !next.IsZero() {
			starts = next
		}
	}
	if !starts.IsZero() {
		s += " – " + starts.Format("Mon Jan 2 15:04")
	}
	if e.Location != "" {
		s += " (" + e.Location + ")"
	}
	return s
}
