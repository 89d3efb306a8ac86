package models

import "strings"

// ScopeToken is a single category:value filter narrowing a KPI query to a
// dimension such as product, organization, or tool serial number.
type ScopeToken struct {
	Category string
	Value    string
}

// ParseScopeToken parses the canonical "category:value" form. The category is
// lowercased; "tool" is accepted as an alias for "tools". Returns false when
// the string has no separator or an empty side.
func ParseScopeToken(s string) (ScopeToken, bool) {
	cat, val, found := strings.Cut(s, ":")
	if !found {
		return ScopeToken{}, false
	}
	cat = strings.ToLower(strings.TrimSpace(cat))
	val = strings.TrimSpace(val)
	if cat == "" || val == "" {
		return ScopeToken{}, false
	}
	if cat == "tool" {
		cat = "tools"
	}
	return ScopeToken{Category: cat, Value: val}, true
}

// String returns the canonical "category:value" form.
func (t ScopeToken) String() string {
	return t.Category + ":" + t.Value
}

// ScopeSet is an ordered set of scope tokens. Uniqueness is per
// (category, value) pair; insertion order is preserved for display.
type ScopeSet struct {
	tokens []ScopeToken
}

// NewScopeSet builds a set from canonical strings, skipping malformed entries.
func NewScopeSet(raw ...string) *ScopeSet {
	s := &ScopeSet{}
	for _, r := range raw {
		if tok, ok := ParseScopeToken(r); ok {
			s.Add(tok)
		}
	}
	return s
}

// Add appends the token if an equal token is not already present.
// Reports whether the token was added.
func (s *ScopeSet) Add(tok ScopeToken) bool {
	if s.Contains(tok) {
		return false
	}
	s.tokens = append(s.tokens, tok)
	return true
}

// Contains reports whether an equal (category, value) pair is present.
func (s *ScopeSet) Contains(tok ScopeToken) bool {
	for _, t := range s.tokens {
		if t == tok {
			return true
		}
	}
	return false
}

// Tokens returns the tokens in insertion order. The returned slice is a copy.
func (s *ScopeSet) Tokens() []ScopeToken {
	out := make([]ScopeToken, len(s.tokens))
	copy(out, s.tokens)
	return out
}

// Strings returns the canonical string form of every token, in order.
func (s *ScopeSet) Strings() []string {
	out := make([]string, 0, len(s.tokens))
	for _, t := range s.tokens {
		out = append(out, t.String())
	}
	return out
}

// Len returns the number of tokens.
func (s *ScopeSet) Len() int {
	return len(s.tokens)
}

// Categories returns the distinct categories in first-seen order.
func (s *ScopeSet) Categories() []string {
	var cats []string
	seen := make(map[string]bool)
	for _, t := range s.tokens {
		if !seen[t.Category] {
			seen[t.Category] = true
			cats = append(cats, t.Category)
		}
	}
	return cats
}

// ByCategory groups token values by category, preserving value order.
func (s *ScopeSet) ByCategory() map[string][]string {
	grouped := make(map[string][]string)
	for _, t := range s.tokens {
		grouped[t.Category] = append(grouped[t.Category], t.Value)
	}
	return grouped
}

// Values returns the values recorded for one category, in insertion order.
func (s *ScopeSet) Values(category string) []string {
	var vals []string
	for _, t := range s.tokens {
		if t.Category == category {
			vals = append(vals, t.Value)
		}
	}
	return vals
}

// Clone returns an independent copy of the set.
func (s *ScopeSet) Clone() *ScopeSet {
	c := &ScopeSet{tokens: make([]ScopeToken, len(s.tokens))}
	copy(c.tokens, s.tokens)
	return c
}
