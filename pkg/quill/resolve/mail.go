// Package resolve – mail.go implements the mail domain resolver.
package resolve

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quillhq/quill/pkg/quill/mail"
	"github.com/quillhq/quill/pkg/quill/plan"
)

// Mail actions that reference an existing message; compose/send actions
// short-circuit.
var mailEntityActions = map[string]bool{
	"reply":     true,
	"forward":   true,
	"archive":   true,
	"delete":    true,
	"get":       true,
	"mark_read": true,
}

// mailBulkActions may act on several messages at once.
var mailBulkActions = map[string]bool{
	"archive":   true,
	"mark_read": true,
}

// MessageSource lists a user's indexed messages. Implemented by *mail.Store.
type MessageSource interface {
	List(ctx context.Context, userID, folder string) ([]mail.Message, error)
}

// MailResolver resolves free-text message references against a MessageSource.
type MailResolver struct {
	messages MessageSource
	cfg      Config
	logger   *slog.Logger
}

// NewMailResolver creates the mail resolver.
func NewMailResolver(source MessageSource, cfg Config, logger *slog.Logger) *MailResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &MailResolver{messages: source, cfg: cfg.normalized(), logger: logger}
}

// Capability returns the mail capability tag.
func (r *MailResolver) Capability() plan.Capability { return plan.CapabilityMail }

// Resolve implements the uniform resolution algorithm for mail steps.
func (r *MailResolver) Resolve(ctx context.Context, rc Context, action string, args plan.Arguments) (Outcome, error) {
	ma := args.Mail
	if ma == nil {
		return Outcome{}, fmt.Errorf("mail resolver: missing mail arguments for action %q", action)
	}
	if !mailEntityActions[action] {
		return Resolved(args), nil
	}
	if len(ma.MessageIDs) > 0 {
		return Resolved(args, ma.MessageIDs...), nil
	}

	query := ma.Query
	if query == "" {
		query = ma.Subject
	}
	if query == "" {
		return ClarifyQuery("which message? no reference text was given", nil), nil
	}

	msgs, err := r.messages.List(ctx, rc.UserID, ma.Folder)
	if err != nil {
		r.logger.Warn("mail lookup failed", "user", rc.UserID, "error", err)
		msgs = nil
	}

	ids := make([]string, len(msgs))
	searchTexts := make([]string, len(msgs))
	displays := make([]string, len(msgs))
	entities := make([]any, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
		searchTexts[i] = m.SearchText()
		displays[i] = formatMessage(m)
		entities[i] = m
	}

	// Rank over sender+subject+snippet, but candidates show the rendered form.
	ranked := rankEntities(query, ids, searchTexts, entities)
	for i := range ranked {
		ranked[i].display = formatMessage(ranked[i].entity.(mail.Message))
	}
	return decide(r.cfg, query, ranked, ids, displays,
		mailBulkActions[action], "which message did you mean?",
		func(chosen []string) Outcome { return finishMail(args, chosen) }), nil
}

// ApplySelection routes a parsed choice back into resolved mail arguments.
func (r *MailResolver) ApplySelection(_ context.Context, _ Context, sel Selection, p *PendingClarification) (Outcome, error) {
	return applyIndexSelection(sel, p, func(chosen []string) Outcome {
		return finishMail(p.OriginalArgs, chosen)
	}), nil
}

// finishMail writes the chosen message ids into a copy of the arguments.
func finishMail(args plan.Arguments, ids []string) Outcome {
	ma := *args.Mail
	ma.MessageIDs = ids
	args.Mail = &ma
	return Resolved(args, ids...)
}

// formatMessage renders a message for candidate display.
func formatMessage(m mail.Message) string {
	s := m.Subject
	if m.From != "" {
		s += " – from " + m.From
	}
	if !m.ReceivedAt.IsZero() {
		s += " (" + m.ReceivedAt.Format("Jan 2") + ")"
	}
	return s
}
