// Package resolve – resolver.go defines the domain resolver contract shared
// by every capability, the per-call resolution context, and the engine
// configuration, together with the ranking helpers all resolvers use.
package resolve

import (
	"context"
	"time"

	"github.com/quillhq/quill/pkg/quill/match"
	"github.com/quillhq/quill/pkg/quill/plan"
)

// Context carries the per-call facts a resolver needs. Resolvers are
// stateless and own nothing across calls; everything comes in here.
type Context struct {
	// UserID identifies whose entities are searched.
	UserID string

	// Now is the turn's reference time.
	Now time.Time

	// Locale is the user's language tag (e.g. "en", "pt-BR").
	Locale string
}

// Resolver is the uniform two-operation contract every capability implements.
type Resolver interface {
	// Capability names the domain this resolver handles.
	Capability() plan.Capability

	// Resolve turns raw step arguments into a terminal or interactive
	// outcome. Pure creates short-circuit to Resolved immediately; arguments
	// already carrying identifiers pass through unchanged.
	Resolve(ctx context.Context, rc Context, action string, args plan.Arguments) (Outcome, error)

	// ApplySelection turns the human's parsed choice over a previously
	// offered candidate set into resolved arguments. Out-of-range or
	// malformed selections yield a fresh Disambiguation over the same
	// candidates — never a default pick.
	ApplySelection(ctx context.Context, rc Context, sel Selection, p *PendingClarification) (Outcome, error)
}

// ---------- Configuration ----------

// Config holds the tunable thresholds of the resolution engine.
type Config struct {
	// DisambiguationGap is the minimum score lead of the top candidate over
	// the runner-up required to auto-resolve without asking.
	DisambiguationGap float64 `yaml:"disambiguation_gap"`

	// MaxCandidates caps how many candidates a disambiguation offers.
	MaxCandidates int `yaml:"max_candidates"`

	// MaxSuggestions caps the low-relevance suggestions on a NotFound.
	MaxSuggestions int `yaml:"max_suggestions"`

	// StrongMatchFloor is the vector similarity a memory conflict candidate
	// must reach to count as a strong match.
	StrongMatchFloor float64 `yaml:"strong_match_floor"`

	// ClarificationTTL is how long a pending clarification stays answerable.
	ClarificationTTL time.Duration `yaml:"clarification_ttl"`

	// AllTokens are the case-insensitive reply words that select every
	// offered candidate ("both", "all", plus locale variants).
	AllTokens []string `yaml:"all_tokens"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		DisambiguationGap: 0.15,
		MaxCandidates:     5,
		MaxSuggestions:    3,
		StrongMatchFloor:  0.85,
		ClarificationTTL:  5 * time.Minute,
		AllTokens:         []string{"all", "both", "todos", "todas", "ambos", "ambas", "tudo"},
	}
}

// normalized fills zero fields with defaults so partial configs stay usable.
func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.DisambiguationGap <= 0 {
		c.DisambiguationGap = def.DisambiguationGap
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = def.MaxCandidates
	}
	if c.MaxSuggestions <= 0 {
		c.MaxSuggestions = def.MaxSuggestions
	}
	if c.StrongMatchFloor <= 0 || c.StrongMatchFloor > 1 {
		c.StrongMatchFloor = def.StrongMatchFloor
	}
	if c.ClarificationTTL <= 0 {
		c.ClarificationTTL = def.ClarificationTTL
	}
	if len(c.AllTokens) == 0 {
		c.AllTokens = def.AllTokens
	}
	return c
}

// ---------- Shared Ranking Helper ----------

// rankedEntity pairs a candidate with the scored match it came from.
type rankedEntity struct {
	id      string
	display string
	entity  any
	score   float64
}

// rankEntities scores entity texts against the query and returns them in
// strictly descending score order.
func rankEntities(query string, ids, texts []string, entities []any) []rankedEntity {
	items := make([]match.Item, len(ids))
	for i := range ids {
		items[i] = match.Item{Key: ids[i], Text: texts[i]}
	}
	byID := make(map[string]int, len(ids))
	for i, id := range ids {
		byID[id] = i
	}

	var out []rankedEntity
	for _, s := range match.Rank(query, items) {
		i := byID[s.Key]
		out = append(out, rankedEntity{id: s.Key, display: texts[i], entity: entities[i], score: s.Score})
	}
	return out
}

// decide applies the uniform auto-resolve rule over ranked entities:
// zero hits ⇒ NotFound with low-relevance suggestions; a single hit, or a
// top-two score gap above the configured threshold ⇒ the top entity;
// otherwise a Disambiguation over the top candidates.
//
// finish maps the chosen entity ids onto resolved arguments.
func decide(cfg Config, query string, ranked []rankedEntity, allIDs, allTexts []string,
	allowMultiple bool, question string, finish func(ids []string) Outcome) Outcome {

	cfg = cfg.normalized()

	if len(ranked) == 0 {
		var suggestions []Candidate
		for i := 0; i < len(allIDs) && len(suggestions) < cfg.MaxSuggestions; i++ {
			suggestions = append(suggestions, Candidate{ID: allIDs[i], DisplayText: allTexts[i]})
		}
		return NotFound(query, "no entity matched the reference", suggestions)
	}

	if len(ranked) == 1 || ranked[0].score-ranked[1].score > cfg.DisambiguationGap {
		return finish([]string{ranked[0].id})
	}

	n := len(ranked)
	if n > cfg.MaxCandidates {
		n = cfg.MaxCandidates
	}
	candidates := make([]Candidate, n)
	for i := 0; i < n; i++ {
		candidates[i] = Candidate{
			ID:          ranked[i].id,
			DisplayText: ranked[i].display,
			Entity:      ranked[i].entity,
			Score:       ranked[i].score,
		}
	}
	return Disambiguate(candidates, allowMultiple, question)
}

// applyIndexSelection is the shared ApplySelection body for entity-choice
// clarifications: it validates the parsed selection against the offered
// candidate set and hands the chosen ids to finish. Any invalid selection
// re-offers the identical candidate list.
func applyIndexSelection(sel Selection, p *PendingClarification, finish func(ids []string) Outcome) Outcome {
	indices, ok := sel.Expand(len(p.Candidates), p.AllowMultiple)
	if !ok {
		return Disambiguate(p.Candidates, p.AllowMultiple, p.Question)
	}
	ids := make([]string, len(indices))
	for i, idx := range indices {
		ids[i] = p.Candidates[idx-1].ID
	}
	return finish(ids)
}
