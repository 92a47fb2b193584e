// Package resolve – selection.go interprets a human's free-form reply against
// an offered candidate set: a 1-based index, a list of indices, or a
// locale-sensitive "both/all" sentinel.
package resolve

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidSelection means the reply did not parse into anything meaningful.
// The coordinator handles it by re-arming the pending clarification.
var ErrInvalidSelection = errors.New("selection did not match any offered candidate")

// Selection is the parsed form of a human's clarification reply.
type Selection struct {
	// Indices are 1-based positions into the offered candidate list.
	Indices []int `json:"indices,omitempty"`

	// All selects every offered candidate ("both"/"all" and locale variants).
	All bool `json:"all,omitempty"`
}

// ParseSelection converts a raw reply value into a Selection. Accepted forms:
// an integer, a list of integers, or a string holding an "all" token, one
// index, or several indices separated by commas/spaces.
func ParseSelection(raw any, allTokens []string) (Selection, error) {
	switch v := raw.(type) {
	case int:
		return Selection{Indices: []int{v}}, nil
	case int64:
		return Selection{Indices: []int{int(v)}}, nil
	case float64:
		// JSON numbers arrive as float64.
		if v != float64(int(v)) {
			return Selection{}, ErrInvalidSelection
		}
		return Selection{Indices: []int{int(v)}}, nil
	case []int:
		if len(v) == 0 {
			return Selection{}, ErrInvalidSelection
		}
		return Selection{Indices: append([]int(nil), v...)}, nil
	case []any:
		var indices []int
		for _, e := range v {
			s, err := ParseSelection(e, nil)
			if err != nil {
				return Selection{}, ErrInvalidSelection
			}
			indices = append(indices, s.Indices...)
		}
		if len(indices) == 0 {
			return Selection{}, ErrInvalidSelection
		}
		return Selection{Indices: indices}, nil
	case string:
		return parseSelectionString(v, allTokens)
	}
	return Selection{}, ErrInvalidSelection
}

// parseSelectionString handles the string reply forms.
func parseSelectionString(s string, allTokens []string) (Selection, error) {
	trimmed := strings.TrimSpace(strings.ToLower(s))
	if trimmed == "" {
		return Selection{}, ErrInvalidSelection
	}

	for _, tok := range allTokens {
		if trimmed == strings.ToLower(tok) {
			return Selection{All: true}, nil
		}
	}

	fields := strings.FieldsFunc(trimmed, func(r rune) bool {
		return r == ',' || r == ';' || r == ' '
	})
	var indices []int
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return Selection{}, ErrInvalidSelection
		}
		indices = append(indices, n)
	}
	if len(indices) == 0 {
		return Selection{}, ErrInvalidSelection
	}
	return Selection{Indices: indices}, nil
}

// Expand resolves the selection into concrete 1-based indices over n offered
// candidates. Returns ok=false for anything out of range, empty, or a
// multi-pick against a single-choice clarification.
func (s Selection) Expand(n int, allowMultiple bool) ([]int, bool) {
	if s.All {
		if !allowMultiple && n > 1 {
			return nil, false
		}
		out := make([]int, n)
		for i := range out {
			out[i] = i + 1
		}
		return out, n > 0
	}

	if len(s.Indices) == 0 {
		return nil, false
	}
	if !allowMultiple && len(s.Indices) > 1 {
		return nil, false
	}

	seen := make(map[int]bool)
	var out []int
	for _, idx := range s.Indices {
		if idx < 1 || idx > n {
			return nil, false
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	return out, true
}
