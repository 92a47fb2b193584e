// Package resolve implements the entity resolution and disambiguation engine:
// domain resolvers turn free-text references inside plan steps into concrete
// identifiers, and the coordinator decides when a human has to choose.
package resolve

import (
	"github.com/quillhq/quill/pkg/quill/plan"
)

// Candidate is one possible real-world referent offered to the user.
// Ephemeral: it lives inside one resolution attempt or one pending
// clarification and is never persisted beyond the clarification's TTL.
type Candidate struct {
	// ID is the concrete entity identifier selection resolves to.
	ID string `json:"id"`

	// DisplayText is what the interaction layer renders for this candidate.
	DisplayText string `json:"display_text"`

	// Entity is the opaque domain payload (event, task, message, memory).
	Entity any `json:"entity,omitempty"`

	// Score is the match relevance in [0,1].
	Score float64 `json:"score"`

	// Metadata carries resolver-private hints (e.g. conflict option kind).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// OutcomeKind tags the case of an Outcome. Exactly one case holds per call.
type OutcomeKind string

const (
	// KindResolved is terminal success for the step.
	KindResolved OutcomeKind = "resolved"

	// KindDisambiguation means a human decision is needed.
	KindDisambiguation OutcomeKind = "disambiguation"

	// KindNotFound means the search ran and found nothing. Terminal for the
	// step; does not block other steps.
	KindNotFound OutcomeKind = "not_found"

	// KindClarifyQuery means the reference was too underspecified to search
	// at all (e.g. no search text given).
	KindClarifyQuery OutcomeKind = "clarify_query"
)

// Outcome is the tagged union returned by resolver calls.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`

	// Resolved case.
	Args        plan.Arguments `json:"args,omitempty"`
	ResolvedIDs []string       `json:"resolved_ids,omitempty"`

	// Disambiguation case.
	Candidates    []Candidate `json:"candidates,omitempty"`
	AllowMultiple bool        `json:"allow_multiple,omitempty"`
	Question      string      `json:"question,omitempty"`

	// NotFound / ClarifyQuery cases.
	SearchedFor string      `json:"searched_for,omitempty"`
	Reason      string      `json:"reason,omitempty"`
	Suggestions []Candidate `json:"suggestions,omitempty"`
}

// Resolved builds a terminal-success outcome.
func Resolved(args plan.Arguments, ids ...string) Outcome {
	return Outcome{Kind: KindResolved, Args: args, ResolvedIDs: ids}
}

// Disambiguate builds an outcome that needs a human decision.
func Disambiguate(candidates []Candidate, allowMultiple bool, question string) Outcome {
	return Outcome{
		Kind:          KindDisambiguation,
		Candidates:    candidates,
		AllowMultiple: allowMultiple,
		Question:      question,
	}
}

// NotFound builds a terminal-failure outcome for the step.
func NotFound(searchedFor, reason string, suggestions []Candidate) Outcome {
	return Outcome{
		Kind:        KindNotFound,
		SearchedFor: searchedFor,
		Reason:      reason,
		Suggestions: suggestions,
	}
}

// ClarifyQuery builds an outcome asking for more search text.
func ClarifyQuery(reason string, suggestions []Candidate) Outcome {
	return Outcome{Kind: KindClarifyQuery, Reason: reason, Suggestions: suggestions}
}
