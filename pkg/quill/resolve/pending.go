// Package resolve – pending.go defines the pending-clarification ledger: the
// persisted record of the single outstanding question blocking a user's plan,
// addressed back to the step that asked it.
package resolve

import (
	"context"
	"errors"
	"time"

	"github.com/quillhq/quill/pkg/quill/plan"
)

// ErrNoPending means no answerable clarification exists for the user — either
// none was ever asked, or the outstanding one expired. A resume attempt
// against it fails cleanly instead of resolving stale candidates.
var ErrNoPending = errors.New("no pending clarification for user")

// PendingClarification is the persisted record of an outstanding question.
// At most one exists per user at any time; it is created by the coordinator
// when a resolver asks for disambiguation and cleared when a valid selection
// is applied.
type PendingClarification struct {
	// UserID addresses the record; a reply may arrive in another process.
	UserID string `json:"user_id"`

	// Domain names the capability whose resolver asked the question and
	// must receive the eventual selection.
	Domain plan.Capability `json:"domain"`

	// Candidates is the offered set the reply is interpreted against.
	Candidates []Candidate `json:"candidates"`

	// AllowMultiple permits selecting several candidates at once.
	AllowMultiple bool `json:"allow_multiple"`

	// OriginStepID is the return-to address: the step that asked.
	OriginStepID string `json:"origin_step_id"`

	// OriginAction and OriginalArgs reconstruct the interrupted resolve call.
	OriginAction string         `json:"origin_action"`
	OriginalArgs plan.Arguments `json:"original_args"`

	// Question is the opaque prompt payload the interaction layer renders.
	Question string `json:"question,omitempty"`

	// ResolvedSoFar preserves arguments of steps resolved earlier in the
	// interrupted pass, so resuming never redoes their work.
	ResolvedSoFar map[string]plan.Arguments `json:"resolved_so_far,omitempty"`

	// CreatedAt starts the TTL clock.
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the clarification is older than ttl at time now.
func (p *PendingClarification) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(p.CreatedAt) > ttl
}

// Ledger persists pending clarifications across process restarts.
// Implementations treat an expired record as absent.
type Ledger interface {
	// Put stores the user's pending clarification, replacing any prior one.
	Put(ctx context.Context, p *PendingClarification) error

	// Get returns the user's outstanding clarification, or ErrNoPending when
	// none exists or the existing one has expired.
	Get(ctx context.Context, userID string) (*PendingClarification, error)

	// Clear removes the user's pending clarification, if any.
	Clear(ctx context.Context, userID string) error
}
