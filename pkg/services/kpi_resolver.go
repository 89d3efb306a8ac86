package services

import "strings"

// KpiRule is one entry of the priority-ordered keyword table: if phrase
// occurs in the utterance as a whole word sequence (case-insensitive), the
// utterance is about the named KPI.
type KpiRule struct {
	Phrase string
	Key    string
}

// KpiResolver matches an utterance to a KPI key via an ordered rule table.
// The table runs from the most specific multi-word phrases down to broad
// single-word fallbacks; the first matching entry wins, regardless of how
// long a later entry's match would have been.
type KpiResolver struct {
	rules []KpiRule
}

// NewKpiResolver creates a resolver with the given rule table. Pass nil to
// use the built-in table.
func NewKpiResolver(rules []KpiRule) *KpiResolver {
	if rules == nil {
		rules = DefaultKpiRules()
	}
	return &KpiResolver{rules: rules}
}

// DefaultKpiRules returns the built-in priority table for the engineering
// operations KPI set.
func DefaultKpiRules() []KpiRule {
	return []KpiRule{
		// Full report-style phrasings (highest priority)
		{"fe headcount report", "fe_count"},
		{"field engineer headcount report", "fe_count"},
		{"os headcount report", "os_count"},
		{"outsourced headcount report", "os_count"},
		{"machine count report", "machine_count"},
		{"chamber count report", "chamber_count"},

		// Analysis intent phrasings
		{"fe headcount analysis", "fe_count"},
		{"os headcount analysis", "os_count"},
		{"field engineer analysis", "fe_count"},
		{"outsourced analysis", "os_count"},
		{"machine count analysis", "machine_count"},
		{"chamber count analysis", "chamber_count"},

		// SU hour per tool
		{"su hour per tool", "su_hour_per_tool"},
		{"startup hour per tool", "su_hour_per_tool"},
		{"startup hours per tool", "su_hour_per_tool"},
		{"average startup hours", "su_hour_per_tool"},
		{"average install time", "su_hour_per_tool"},
		{"install hours per tool", "su_hour_per_tool"},
		{"su hour", "su_hour_per_tool"},
		{"su hours", "su_hour_per_tool"},
		{"install time", "su_hour_per_tool"},
		{"install hours", "su_hour_per_tool"},

		// Keywords
		{"fe headcount", "fe_count"},
		{"fe count", "fe_count"},
		{"field engineer", "fe_count"},
		{"fe", "fe_count"},
		{"os headcount", "os_count"},
		{"os count", "os_count"},
		{"outsourced", "os_count"},
		{"outsourcing", "os_count"},
		{"os", "os_count"},
		{"machine count", "machine_count"},
		{"machines", "machine_count"},
		{"machine", "machine_count"},
		{"chamber count", "chamber_count"},
		{"chambers", "chamber_count"},
		{"chamber", "chamber_count"},
		{"headcount report", "headcount"},
		{"headcount", "headcount"},
		{"head count", "headcount"},
		{"staff", "headcount"},
	}
}

// Resolve matches the utterance against the rule table and decides between
// reset and carry. A match that differs from the carried KPI is a reset:
// the new KPI replaces the old one and the caller clears time and scope
// before re-extracting from the same utterance. A match equal to the
// carried KPI, or no match at all, carries the existing KPI forward.
func (r *KpiResolver) Resolve(text, currentKPI string) (key string, reset bool) {
	lower := strings.ToLower(text)

	var matched string
	for _, rule := range r.rules {
		// Word-boundary matching keeps short keys such as "os" from firing
		// inside unrelated words.
		if containsPhrase(lower, rule.Phrase) {
			matched = rule.Key
			break
		}
	}

	if matched != "" && matched != currentKPI {
		return matched, true
	}
	if currentKPI != "" {
		return currentKPI, false
	}
	return matched, false
}
