// Package resolve – memory.go implements the semantic-memory domain resolver,
// including write-conflict detection: a new contact or fact may be a duplicate
// of, or an update to, an existing entry, and the user decides which.
package resolve

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quillhq/quill/pkg/quill/memory"
	"github.com/quillhq/quill/pkg/quill/plan"
)

// Memory actions that reference an existing entry. "store" is the
// conflict-prone insert path; "retrieve" is itself a search and passes
// through.
var memoryEntityActions = map[string]bool{
	"update": true,
	"delete": true,
	"get":    true,
}

// conflictOptionKey marks conflict-disambiguation candidates so the eventual
// selection is interpreted as a write decision, not an entity pick.
const conflictOptionKey = "conflict_option"

// keepBothSentinel is the candidate id of the "keep both / insert new"
// option. It never resolves to a real entry id.
const keepBothSentinel = "__keep_both__"

// MemorySource searches a user's memories and detects write conflicts.
// Implemented by *memory.Store.
type MemorySource interface {
	Search(ctx context.Context, userID, query string, limit int) ([]memory.SearchHit, error)
	ConflictCandidates(ctx context.Context, userID string, incoming *memory.Memory, floor float64) ([]memory.ConflictMatch, error)
}

// MemoryResolver resolves memory references and gates conflict-prone inserts.
type MemoryResolver struct {
	store  MemorySource
	cfg    Config
	logger *slog.Logger
}

// NewMemoryResolver creates the semantic-memory resolver.
func NewMemoryResolver(store MemorySource, cfg Config, logger *slog.Logger) *MemoryResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryResolver{store: store, cfg: cfg.normalized(), logger: logger}
}

// Capability returns the memory capability tag.
func (r *MemoryResolver) Capability() plan.Capability { return plan.CapabilityMemory }

// Resolve dispatches between the insert-conflict path and entity resolution.
func (r *MemoryResolver) Resolve(ctx context.Context, rc Context, action string, args plan.Arguments) (Outcome, error) {
	ma := args.Memory
	if ma == nil {
		return Outcome{}, fmt.Errorf("memory resolver: missing memory arguments for action %q", action)
	}

	if action == "store" {
		return r.resolveStore(ctx, rc, args), nil
	}
	if !memoryEntityActions[action] {
		return Resolved(args), nil
	}
	if len(ma.MemoryIDs) > 0 {
		return Resolved(args, ma.MemoryIDs...), nil
	}

	query := ma.Query
	if query == "" {
		query = ma.Content
	}
	if query == "" {
		return ClarifyQuery("which memory? no reference text was given", nil), nil
	}

	hits, err := r.store.Search(ctx, rc.UserID, query, r.cfg.MaxCandidates*2)
	if err != nil {
		r.logger.Warn("memory search failed", "user", rc.UserID, "error", err)
		hits = nil
	}

	ranked := make([]rankedEntity, len(hits))
	for i, h := range hits {
		ranked[i] = rankedEntity{id: h.ID, display: h.Content, entity: h.Memory, score: h.Score}
	}

	return decide(r.cfg, query, ranked, nil, nil,
		false, "which memory did you mean?",
		func(chosen []string) Outcome { return finishMemory(args, chosen) }), nil
}

// resolveStore runs conflict detection before a new contact or fact is
// written. Notes never conflict, and a failed lookup proceeds with the
// insert rather than blocking the write.
func (r *MemoryResolver) resolveStore(ctx context.Context, rc Context, args plan.Arguments) Outcome {
	ma := args.Memory
	if ma.ConflictDecision != "" {
		// Conflict already settled on a previous turn.
		return Resolved(args)
	}
	if ma.Kind != memory.KindContact && ma.Kind != memory.KindFact {
		return Resolved(args)
	}

	incoming := &memory.Memory{Kind: ma.Kind, Content: ma.Content, Subject: ma.Subject}
	matches, err := r.store.ConflictCandidates(ctx, rc.UserID, incoming, r.cfg.StrongMatchFloor)
	if err != nil {
		r.logger.Warn("conflict detection failed, proceeding with insert",
			"user", rc.UserID, "error", err)
		return Resolved(args)
	}

	var strong *memory.ConflictMatch
	for i := range matches {
		if matches[i].IsStrongMatch {
			strong = &matches[i]
			break
		}
	}
	if strong == nil {
		// Most writes proceed without ever asking.
		return Resolved(args)
	}

	candidates := []Candidate{
		{
			ID:          strong.Memory.ID,
			DisplayText: "Update existing: " + strong.Memory.Content,
			Entity:      strong.Memory,
			Score:       strong.Similarity,
			Metadata:    map[string]string{conflictOptionKey: string(plan.ConflictOverride)},
		},
		{
			ID:          keepBothSentinel,
			DisplayText: "Keep both (save as new)",
			Metadata:    map[string]string{conflictOptionKey: string(plan.ConflictInsert)},
		},
	}
	return Disambiguate(candidates, false,
		"a similar entry already exists — update it or keep both?")
}

// ApplySelection routes a parsed choice back into resolved memory arguments,
// interpreting conflict-option candidates as write decisions.
func (r *MemoryResolver) ApplySelection(_ context.Context, _ Context, sel Selection, p *PendingClarification) (Outcome, error) {
	if isConflictClarification(p) {
		return applyIndexSelection(sel, p, func(chosen []string) Outcome {
			return finishConflict(p, chosen[0])
		}), nil
	}
	return applyIndexSelection(sel, p, func(chosen []string) Outcome {
		return finishMemory(p.OriginalArgs, chosen)
	}), nil
}

// isConflictClarification reports whether the pending question was a write
// conflict rather than an entity pick.
func isConflictClarification(p *PendingClarification) bool {
	return len(p.Candidates) > 0 && p.Candidates[0].Metadata[conflictOptionKey] != ""
}

// finishConflict settles the write conflict from the chosen option id.
func finishConflict(p *PendingClarification, chosenID string) Outcome {
	args := p.OriginalArgs
	ma := *args.Memory
	if chosenID == keepBothSentinel {
		ma.ConflictDecision = plan.ConflictInsert
		ma.TargetID = ""
		args.Memory = &ma
		return Resolved(args)
	}
	ma.ConflictDecision = plan.ConflictOverride
	ma.TargetID = chosenID
	args.Memory = &ma
	return Resolved(args, chosenID)
}

// finishMemory writes the chosen memory ids into a copy of the arguments.
func finishMemory(args plan.Arguments, ids []string) Outcome {
	ma := *args.Memory
	ma.MemoryIDs = ids
	args.Memory = &ma
	return Resolved(args, ids...)
}
