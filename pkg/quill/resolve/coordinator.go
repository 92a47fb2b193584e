// Package resolve – coordinator.go iterates the steps of a plan, invoking the
// matching domain resolver for each one, and enforces the single-outstanding-
// clarification rule: the first step that cannot be auto-resolved parks the
// whole batch behind a persisted pending clarification, and the human's next
// reply is routed back into exactly that step.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quillhq/quill/pkg/quill/plan"
)

// StepFailure records a terminal resolution failure for one step.
type StepFailure struct {
	StepID      string      `json:"step_id"`
	Kind        OutcomeKind `json:"kind"`
	SearchedFor string      `json:"searched_for,omitempty"`
	Reason      string      `json:"reason"`
	Suggestions []Candidate `json:"suggestions,omitempty"`
}

// TurnResult is what one resolution turn produced. Exactly one of three
// shapes: all steps resolved (Pending and Failure nil), parked on a
// clarification (Pending set), or ended by a terminal failure (Failure set).
type TurnResult struct {
	// Resolved maps step id to fully resolved arguments, ready for
	// capability-specific execution.
	Resolved map[string]plan.Arguments `json:"resolved"`

	// ResolvedIDs maps step id to the concrete entity ids it resolved to.
	ResolvedIDs map[string][]string `json:"resolved_ids,omitempty"`

	// Pending is the outstanding question when the turn parked.
	Pending *PendingClarification `json:"pending,omitempty"`

	// Failure is the terminal failure that ended the turn, if any.
	Failure *StepFailure `json:"failure,omitempty"`
}

// Complete reports whether every dispatched step resolved.
func (t *TurnResult) Complete() bool {
	return t.Pending == nil && t.Failure == nil
}

// Coordinator owns the pending-clarification lifetime and the per-turn map of
// resolved arguments. Resolvers are registered once at construction.
type Coordinator struct {
	cfg       Config
	resolvers map[plan.Capability]Resolver
	ledger    Ledger
	locks     *turnLocks
	logger    *slog.Logger
}

// NewCoordinator creates a coordinator over the given resolvers.
func NewCoordinator(cfg Config, ledger Ledger, logger *slog.Logger, resolvers ...Resolver) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	m := make(map[plan.Capability]Resolver, len(resolvers))
	for _, r := range resolvers {
		m[r.Capability()] = r
	}
	return &Coordinator{
		cfg:       cfg.normalized(),
		resolvers: m,
		ledger:    ledger,
		locks:     newTurnLocks(),
		logger:    logger,
	}
}

// Pending returns the user's outstanding clarification, or ErrNoPending.
func (c *Coordinator) Pending(ctx context.Context, userID string) (*PendingClarification, error) {
	return c.ledger.Get(ctx, userID)
}

// RunTurn resolves as much of the plan as possible in one conversational
// turn. A non-nil selection makes this a resume turn: the reply is applied
// through the resolver that asked, then resolution continues with the steps
// left over from before the interrupt.
//
// Turns for one user are mutually exclusive; a second concurrent turn is
// rejected with ErrTurnInProgress. Context cancellation aborts the turn
// without touching the ledger.
func (c *Coordinator) RunTurn(ctx context.Context, rc Context, steps []plan.OperationStep, selection *Selection) (*TurnResult, error) {
	if rc.UserID == "" {
		return nil, fmt.Errorf("coordinator: empty user id")
	}
	if rc.Now.IsZero() {
		rc.Now = time.Now().UTC()
	}
	if !c.locks.acquire(rc.UserID) {
		return nil, ErrTurnInProgress
	}
	defer c.locks.release(rc.UserID)

	result := &TurnResult{
		Resolved:    make(map[string]plan.Arguments),
		ResolvedIDs: make(map[string][]string),
	}

	// Is this turn a resume? Decided exactly once, here.
	pending, err := c.ledger.Get(ctx, rc.UserID)
	isResume := err == nil && selection != nil

	if selection != nil && err != nil {
		// The human answered a question that no longer exists (expired or
		// never asked). Fail cleanly rather than guessing.
		return nil, fmt.Errorf("coordinator: apply selection: %w", err)
	}

	if isResume {
		done, err := c.resume(ctx, rc, pending, *selection, result)
		if err != nil {
			return nil, err
		}
		if done {
			return result, nil
		}
	}

	c.dispatch(ctx, rc, steps, result)
	if err := ctx.Err(); err != nil {
		// Cancellation aborts the turn; the ledger was not touched past the
		// last completed resolver call, so a retry sees consistent state.
		return nil, err
	}
	return result, nil
}

// resume applies the selection through the resolver that asked. Returns
// done=true when the turn must end immediately (re-armed clarification).
func (c *Coordinator) resume(ctx context.Context, rc Context, pending *PendingClarification, sel Selection, result *TurnResult) (bool, error) {
	resolver, ok := c.resolvers[pending.Domain]
	if !ok {
		return false, fmt.Errorf("coordinator: no resolver for pending domain %q", pending.Domain)
	}

	outcome, err := resolver.ApplySelection(ctx, rc, sel, pending)
	if err != nil {
		return false, fmt.Errorf("coordinator: apply selection for step %s: %w", pending.OriginStepID, err)
	}

	switch outcome.Kind {
	case KindResolved:
		// Restore the work preserved from the interrupted pass, then record
		// the origin step.
		for id, args := range pending.ResolvedSoFar {
			result.Resolved[id] = args
		}
		result.Resolved[pending.OriginStepID] = outcome.Args
		result.ResolvedIDs[pending.OriginStepID] = outcome.ResolvedIDs
		if err := c.ledger.Clear(ctx, rc.UserID); err != nil {
			return false, fmt.Errorf("coordinator: clear clarification: %w", err)
		}
		c.logger.Debug("clarification resolved",
			"user", rc.UserID, "step", pending.OriginStepID, "ids", outcome.ResolvedIDs)
		return false, nil

	case KindDisambiguation:
		// Invalid selection: re-arm the same clarification, candidates
		// preserved, so the human can retry without losing context.
		result.Pending = pending
		c.logger.Debug("invalid selection, clarification re-armed",
			"user", rc.UserID, "step", pending.OriginStepID)
		return true, nil

	default:
		return false, fmt.Errorf("coordinator: unexpected apply-selection outcome %q", outcome.Kind)
	}
}

// dispatch runs the fresh-dispatch loop over the plan in order, stopping at
// the first disambiguation or terminal failure.
func (c *Coordinator) dispatch(ctx context.Context, rc Context, steps []plan.OperationStep, result *TurnResult) {
	for _, step := range steps {
		if _, done := result.Resolved[step.ID]; done {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		if err := step.Args.Validate(step.Capability); err != nil {
			c.logger.Warn("step carries a mismatched argument bag",
				"step", step.ID, "capability", step.Capability, "error", err)
			result.Failure = &StepFailure{
				StepID: step.ID,
				Kind:   KindNotFound,
				Reason: err.Error(),
			}
			return
		}

		resolver, ok := c.resolvers[step.Capability]
		if !ok {
			// Capabilities without a resolver pass through unchanged.
			result.Resolved[step.ID] = step.Args
			continue
		}

		outcome, err := resolver.Resolve(ctx, rc, step.Action, step.Args)
		if err != nil {
			c.logger.Warn("resolver error, step recorded as failed",
				"step", step.ID, "capability", step.Capability, "error", err)
			result.Failure = &StepFailure{
				StepID: step.ID,
				Kind:   KindNotFound,
				Reason: err.Error(),
			}
			return
		}

		switch outcome.Kind {
		case KindResolved:
			result.Resolved[step.ID] = outcome.Args
			if len(outcome.ResolvedIDs) > 0 {
				result.ResolvedIDs[step.ID] = outcome.ResolvedIDs
			}

		case KindDisambiguation:
			// First ambiguous reference halts the batch. Steps resolved
			// earlier in this pass ride along so resuming never redoes them.
			pending := &PendingClarification{
				UserID:        rc.UserID,
				Domain:        step.Capability,
				Candidates:    outcome.Candidates,
				AllowMultiple: outcome.AllowMultiple,
				OriginStepID:  step.ID,
				OriginAction:  step.Action,
				OriginalArgs:  step.Args,
				Question:      outcome.Question,
				ResolvedSoFar: cloneArgs(result.Resolved),
				CreatedAt:     rc.Now,
			}
			if err := c.ledger.Put(ctx, pending); err != nil {
				c.logger.Warn("failed to persist clarification", "step", step.ID, "error", err)
				result.Failure = &StepFailure{StepID: step.ID, Kind: KindNotFound, Reason: err.Error()}
				return
			}
			result.Pending = pending
			c.logger.Debug("turn parked on clarification",
				"user", rc.UserID, "step", step.ID, "candidates", len(outcome.Candidates))
			return

		case KindNotFound, KindClarifyQuery:
			// Terminal for this pass: an explanatory result, not an interrupt.
			result.Failure = &StepFailure{
				StepID:      step.ID,
				Kind:        outcome.Kind,
				SearchedFor: outcome.SearchedFor,
				Reason:      outcome.Reason,
				Suggestions: outcome.Suggestions,
			}
			return
		}
	}
}

// cloneArgs copies the per-turn resolved map for persistence.
func cloneArgs(m map[string]plan.Arguments) map[string]plan.Arguments {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]plan.Arguments, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
