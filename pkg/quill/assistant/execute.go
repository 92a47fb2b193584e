// Package assistant – execute.go applies fully resolved plan steps to the
// domain stores. Execution is intentionally simple: by the time a step
// reaches here its arguments carry concrete identifiers, so every operation
// is a direct store call.
package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/quillhq/quill/pkg/quill/calendar"
	"github.com/quillhq/quill/pkg/quill/memory"
	"github.com/quillhq/quill/pkg/quill/plan"
	"github.com/quillhq/quill/pkg/quill/resolve"
	"github.com/quillhq/quill/pkg/quill/tasks"
)

// ExecuteTurn executes every resolved step of a completed turn, in plan
// order, and returns one human-readable line per step.
func (e *Engine) ExecuteTurn(ctx context.Context, userID string, steps []plan.OperationStep, result *resolve.TurnResult) ([]string, error) {
	if !result.Complete() {
		return nil, fmt.Errorf("execute: turn is not fully resolved")
	}

	var lines []string
	for _, step := range steps {
		args, ok := result.Resolved[step.ID]
		if !ok {
			continue
		}
		line, err := e.executeStep(ctx, userID, step, args)
		if err != nil {
			return lines, fmt.Errorf("execute step %s (%s.%s): %w", step.ID, step.Capability, step.Action, err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// executeStep dispatches one resolved step to its store.
func (e *Engine) executeStep(ctx context.Context, userID string, step plan.OperationStep, args plan.Arguments) (string, error) {
	switch step.Capability {
	case plan.CapabilityCalendar:
		return e.executeCalendar(ctx, userID, step.Action, args.Calendar)
	case plan.CapabilityTasks:
		return e.executeTasks(ctx, userID, step.Action, args.Tasks)
	case plan.CapabilityMail:
		return e.executeMail(ctx, userID, step.Action, args.Mail)
	case plan.CapabilityMemory:
		return e.executeMemory(ctx, userID, step.Action, args.Memory)
	}
	return "", fmt.Errorf("unknown capability %q", step.Capability)
}

func (e *Engine) executeCalendar(ctx context.Context, userID, action string, ca *plan.CalendarArgs) (string, error) {
	if ca == nil {
		return "", fmt.Errorf("missing calendar arguments")
	}
	switch action {
	case "create":
		ev := &calendar.Event{UserID: userID, Title: ca.Title, Location: ca.Location}
		if ca.StartsAt != nil {
			ev.StartsAt = *ca.StartsAt
		}
		if ca.EndsAt != nil {
			ev.EndsAt = *ca.EndsAt
		}
		if err := e.Calendar.Save(ctx, ev); err != nil {
			return "", err
		}
		return "event created: " + ca.Title, nil
	case "update":
		for _, id := range ca.EventIDs {
			ev, err := e.Calendar.Get(ctx, userID, id)
			if err != nil {
				return "", err
			}
			if ca.Title != "" {
				ev.Title = ca.Title
			}
			if ca.Location != "" {
				ev.Location = ca.Location
			}
			if ca.StartsAt != nil {
				ev.StartsAt = *ca.StartsAt
			}
			if ca.EndsAt != nil {
				ev.EndsAt = *ca.EndsAt
			}
			if err := e.Calendar.Save(ctx, ev); err != nil {
				return "", err
			}
		}
		return fmt.Sprintf("updated %d event(s)", len(ca.EventIDs)), nil
	case "delete", "delete_window":
		for _, id := range ca.EventIDs {
			if err := e.Calendar.Delete(ctx, userID, id); err != nil {
				return "", err
			}
		}
		return fmt.Sprintf("deleted %d event(s)", len(ca.EventIDs)), nil
	case "get":
		var titles []string
		for _, id := range ca.EventIDs {
			ev, err := e.Calendar.Get(ctx, userID, id)
			if err != nil {
				return "", err
			}
			titles = append(titles, ev.Title)
		}
		return "found: " + strings.Join(titles, ", "), nil
	}
	return "", fmt.Errorf("unknown calendar action %q", action)
}

func (e *Engine) executeTasks(ctx context.Context, userID, action string, ta *plan.TaskArgs) (string, error) {
	if ta == nil {
		return "", fmt.Errorf("missing task arguments")
	}
	switch action {
	case "add":
		t := &tasks.Task{UserID: userID, ListName: ta.ListName, Title: ta.Title, DueAt: ta.DueAt}
		if err := e.Tasks.Save(ctx, t); err != nil {
			return "", err
		}
		return "task added: " + ta.Title, nil
	case "update", "complete":
		for _, id := range ta.TaskIDs {
			t, err := e.Tasks.Get(ctx, userID, id)
			if err != nil {
				return "", err
			}
			if ta.Title != "" && action == "update" {
				t.Title = ta.Title
			}
			if ta.DueAt != nil {
				t.DueAt = ta.DueAt
			}
			if action == "complete" {
				t.Done = true
			} else if ta.Done != nil {
				t.Done = *ta.Done
			}
			if err := e.Tasks.Save(ctx, t); err != nil {
				return "", err
			}
		}
		return fmt.Sprintf("updated %d task(s)", len(ta.TaskIDs)), nil
	case "delete", "clear_completed":
		for _, id := range ta.TaskIDs {
			if err := e.Tasks.Delete(ctx, userID, id); err != nil {
				return "", err
			}
		}
		return fmt.Sprintf("removed %d task(s)", len(ta.TaskIDs)), nil
	}
	return "", fmt.Errorf("unknown task action %q", action)
}

func (e *Engine) executeMail(ctx context.Context, userID, action string, ma *plan.MailArgs) (string, error) {
	if ma == nil {
		return "", fmt.Errorf("missing mail arguments")
	}
	switch action {
	case "compose", "send":
		// The local index has no outbound transport; composing is a no-op
		// acknowledgment until a provider is attached.
		return "draft prepared for " + ma.To, nil
	case "reply", "forward", "get":
		return fmt.Sprintf("%s targets %d message(s)", action, len(ma.MessageIDs)), nil
	case "archive":
		for _, id := range ma.MessageIDs {
			m, err := e.Mail.Get(ctx, userID, id)
			if err != nil {
				return "", err
			}
			m.Folder = "archive"
			if err := e.Mail.Save(ctx, m); err != nil {
				return "", err
			}
		}
		return fmt.Sprintf("archived %d message(s)", len(ma.MessageIDs)), nil
	case "mark_read":
		for _, id := range ma.MessageIDs {
			m, err := e.Mail.Get(ctx, userID, id)
			if err != nil {
				return "", err
			}
			m.Read = true
			if err := e.Mail.Save(ctx, m); err != nil {
				return "", err
			}
		}
		return fmt.Sprintf("marked %d message(s) read", len(ma.MessageIDs)), nil
	case "delete":
		for _, id := range ma.MessageIDs {
			if err := e.Mail.Delete(ctx, userID, id); err != nil {
				return "", err
			}
		}
		return fmt.Sprintf("deleted %d message(s)", len(ma.MessageIDs)), nil
	}
	return "", fmt.Errorf("unknown mail action %q", action)
}

func (e *Engine) executeMemory(ctx context.Context, userID, action string, ma *plan.MemoryArgs) (string, error) {
	if ma == nil {
		return "", fmt.Errorf("missing memory arguments")
	}
	switch action {
	case "store":
		m := &memory.Memory{UserID: userID, Kind: ma.Kind, Content: ma.Content, Subject: ma.Subject}
		if m.Kind == "" {
			m.Kind = memory.KindNote
		}
		if ma.ConflictDecision == plan.ConflictOverride && ma.TargetID != "" {
			// Update the conflicting entry in place.
			m.ID = ma.TargetID
		}
		if err := e.Memory.Save(ctx, m); err != nil {
			return "", err
		}
		if ma.ConflictDecision == plan.ConflictOverride {
			return "memory updated", nil
		}
		return "memory saved", nil
	case "update":
		for _, id := range ma.MemoryIDs {
			m, err := e.Memory.Get(ctx, userID, id)
			if err != nil {
				return "", err
			}
			if ma.Content != "" {
				m.Content = ma.Content
			}
			if ma.Subject != "" {
				m.Subject = ma.Subject
			}
			if err := e.Memory.Save(ctx, m); err != nil {
				return "", err
			}
		}
		return fmt.Sprintf("updated %d memory entry(ies)", len(ma.MemoryIDs)), nil
	case "delete":
		for _, id := range ma.MemoryIDs {
			if err := e.Memory.Delete(ctx, userID, id); err != nil {
				return "", err
			}
		}
		return fmt.Sprintf("forgot %d memory entry(ies)", len(ma.MemoryIDs)), nil
	case "get":
		// Resolution already produced concrete ids; fetch them directly.
		var lines []string
		for _, id := range ma.MemoryIDs {
			m, err := e.Memory.Get(ctx, userID, id)
			if err != nil {
				return "", err
			}
			lines = append(lines, m.Content)
		}
		if len(lines) == 0 {
			return "nothing remembered about that", nil
		}
		return strings.Join(lines, "; "), nil
	case "retrieve":
		hits, err := e.Memory.Search(ctx, userID, ma.Query, 5)
		if err != nil {
			return "", err
		}
		var lines []string
		for _, h := range hits {
			lines = append(lines, h.Content)
		}
		if len(lines) == 0 {
			return "nothing remembered about that", nil
		}
		return strings.Join(lines, "; "), nil
	}
	return "", fmt.Errorf("unknown memory action %q", action)
}
