// Package match – match.go implements fuzzy text scoring for entity
// resolution. Pure functions over (query, candidate texts): no I/O, no state.
// Scores combine exact/substring containment with token overlap so that short
// conversational references ("the dentist one") still rank the right entity.
package match

import (
	"sort"
	"strings"
	"unicode"
)

// Item is one candidate text to score, carrying an opaque key the caller uses
// to map scores back to entities.
type Item struct {
	Key  string
	Text string
}

// Scored is an Item with its relevance score in [0,1].
type Scored struct {
	Item
	Score float64
}

// Score rates how well candidate matches query, in [0,1].
// 1.0 is an exact normalized match; substring containment scores high;
// otherwise the score is the keyword-overlap ratio damped by length mismatch.
func Score(query, candidate string) float64 {
	q := normalize(query)
	c := normalize(candidate)
	if q == "" || c == "" {
		return 0
	}
	if q == c {
		return 1.0
	}
	if strings.Contains(c, q) || strings.Contains(q, c) {
		// Containment: scale by how much of the longer string is covered.
		shorter, longer := len(q), len(c)
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		return 0.75 + 0.2*float64(shorter)/float64(longer)
	}

	qKeys := Keywords(query)
	cTokens := tokenSet(c)
	if len(qKeys) == 0 || len(cTokens) == 0 {
		return 0
	}

	hits := 0
	partial := 0.0
	for _, kw := range qKeys {
		if cTokens[kw] {
			hits++
			continue
		}
		// Prefix match tolerates inflection ("meeting" vs "meetings").
		for tok := range cTokens {
			if len(kw) >= 4 && (strings.HasPrefix(tok, kw) || strings.HasPrefix(kw, tok)) {
				partial += 0.5
				break
			}
		}
	}

	return 0.7 * (float64(hits) + partial) / float64(len(qKeys))
}

// Rank scores every item against query and returns them sorted by strictly
// descending score; items scoring zero are dropped.
func Rank(query string, items []Item) []Scored {
	var out []Scored
	for _, it := range items {
		if s := Score(query, it.Text); s > 0 {
			out = append(out, Scored{Item: it, Score: s})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Keywords extracts meaningful lowercase keywords from a conversational
// query, dropping stop words and short tokens.
func Keywords(query string) []string {
	var keys []string
	for _, w := range strings.Fields(normalize(query)) {
		if len([]rune(w)) < 3 || stopWords[w] {
			continue
		}
		keys = append(keys, w)
	}
	return keys
}

// KeywordOverlap reports whether a and b share at least one extracted
// keyword. Used by memory conflict detection for the contact kind.
func KeywordOverlap(a, b string) bool {
	bSet := make(map[string]bool)
	for _, kw := range Keywords(b) {
		bSet[kw] = true
	}
	for _, kw := range Keywords(a) {
		if bSet[kw] {
			return true
		}
	}
	return false
}

// normalize lowercases and strips punctuation, collapsing whitespace.
func normalize(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// tokenSet splits normalized text into a membership set.
func tokenSet(normalized string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(normalized) {
		set[w] = true
	}
	return set
}

// stopWords are common words filtered out during keyword extraction.
// English plus Portuguese, matching the assistant's bilingual user base.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "was": true,
	"one": true, "our": true, "out": true, "has": true, "its": true,
	"who": true, "did": true, "get": true, "him": true, "his": true,
	"her": true, "how": true, "new": true, "now": true, "old": true,
	"see": true, "way": true, "too": true, "use": true, "that": true,
	"with": true, "have": true, "this": true, "will": true, "your": true,
	"from": true, "they": true, "been": true, "each": true, "which": true,
	"their": true, "what": true, "about": true, "would": true, "there": true,
	"when": true, "make": true, "like": true, "just": true, "know": true,
	"into": true, "over": true, "such": true, "also": true, "some": true,
	"them": true, "then": true, "these": true, "where": true, "should": true,
	"after": true, "please": true, "thing": true,
	// Portuguese stop words
	"que": true, "não": true, "com": true, "uma": true, "para": true,
	"por": true, "mais": true, "como": true, "mas": true, "dos": true,
	"das": true, "nos": true, "nas": true, "foi": true, "ser": true,
	"tem": true, "são": true, "seu": true, "sua": true, "isso": true,
	"este": true, "esta": true, "esse": true, "essa": true, "aqui": true,
	"ele": true, "ela": true, "eles": true, "elas": true, "nós": true,
	"você": true, "voce": true, "também": true, "sobre": true,
}
