package services

import (
	"strings"

	"github.com/kpibot-inc/kpibot-engine/pkg/models"
)

// UnsupportedKPIMessage is the fixed reply for questions about metrics the
// catalog does not cover. The wording is stable so downstream clients can
// key off it.
const UnsupportedKPIMessage = "I'm sorry, but I can't help with that metric yet. " +
	"I've noted your request so we can consider adding it. " +
	"Please ask about one of the supported KPIs."

// completionLexicon is the closed set of phrases that signal the user is
// done refining scope. Checked as case-insensitive whole-word phrases.
var completionLexicon = []string{
	"none", "nothing", "no", "nope", "skip",
	"that's all", "that is all", "no more",
	"not needed", "no need", "done", "enough",
	"all", "everything",
}

// SlotCompletionPolicy decides, after extraction and enrichment, which
// slots still block query execution and whether the conversation has
// reached the terminal unsupported-KPI state. It is pure: callers perform
// any audit logging the decision calls for.
type SlotCompletionPolicy struct{}

// NewSlotCompletionPolicy creates the policy.
func NewSlotCompletionPolicy() *SlotCompletionPolicy {
	return &SlotCompletionPolicy{}
}

// Evaluate mutates analysis in place, filling Missing, ProactiveScope,
// MissingScopeCategories, FinishedSelection, UnsupportedKPI, and
// ResponseMessage. def is nil when the KPI key did not resolve against the
// catalog. scopePrompted reports whether a previous turn already asked the
// user to narrow scope; scope is asked about at most once per context.
func (p *SlotCompletionPolicy) Evaluate(analysis *models.Analysis, def *models.KPIDefinition, latestUtterance string, scopePrompted bool) {
	analysis.Missing = nil
	analysis.ProactiveScope = false
	analysis.MissingScopeCategories = nil
	if analysis.Scope == nil {
		analysis.Scope = models.NewScopeSet()
	}

	if analysis.TimeRange == "" {
		analysis.Missing = append(analysis.Missing, models.SlotTimeRange)
	}

	if !analysis.FinishedSelection && utteranceSignalsCompletion(latestUtterance) {
		analysis.FinishedSelection = true
	}

	if def != nil {
		p.evaluateKnownKPI(analysis, def, scopePrompted)
	} else {
		p.evaluateUnknownKPI(analysis, scopePrompted)
	}
}

// evaluateKnownKPI applies the scope rules for a cataloged KPI. A finished
// selection suppresses all scope prompts; so does a prior prompt, which
// additionally flips the context to finished so later turns stay quiet.
func (p *SlotCompletionPolicy) evaluateKnownKPI(analysis *models.Analysis, def *models.KPIDefinition, scopePrompted bool) {
	if analysis.FinishedSelection {
		return
	}

	covered := make(map[string]bool)
	for _, c := range analysis.Scope.Categories() {
		covered[c] = true
	}

	if len(covered) == 0 {
		if scopePrompted {
			analysis.FinishedSelection = true
			return
		}
		analysis.Missing = append(analysis.Missing, models.SlotScope)
		return
	}

	var uncovered []string
	for _, c := range def.AllowedScopes {
		if !covered[c] {
			uncovered = append(uncovered, c)
		}
	}
	if len(uncovered) == 0 {
		return
	}
	if scopePrompted {
		analysis.FinishedSelection = true
		return
	}
	// The uncovered categories are a real missing slot: the turn asks a
	// targeted follow-up instead of answering.
	analysis.ProactiveScope = true
	analysis.MissingScopeCategories = uncovered
	analysis.Missing = append(analysis.Missing, models.SlotScope)
}

// evaluateUnknownKPI handles utterances whose KPI never resolved. The user
// must show engagement (some scope, an explicit completion signal, or a
// prior scope prompt, which counts as an implicit finish) before the
// request is declared unsupported; until then the scope follow-up keeps
// the clarification loop going.
func (p *SlotCompletionPolicy) evaluateUnknownKPI(analysis *models.Analysis, scopePrompted bool) {
	if scopePrompted {
		analysis.FinishedSelection = true
	}

	engaged := analysis.Scope.Len() > 0 || analysis.FinishedSelection
	if !engaged {
		analysis.Missing = append(analysis.Missing, models.SlotScope)
		return
	}
	if analysis.TimeRange == "" {
		return
	}

	// Everything else is settled and the metric still is not one of ours.
	analysis.UnsupportedKPI = true
	analysis.Missing = nil
	analysis.ResponseMessage = UnsupportedKPIMessage
}

// utteranceSignalsCompletion reports whether the utterance contains a
// completion-lexicon phrase as a whole word sequence.
func utteranceSignalsCompletion(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return false
	}
	for _, phrase := range completionLexicon {
		if containsPhrase(lower, phrase) {
			return true
		}
	}
	return false
}

// containsPhrase matches phrase inside text on word boundaries, so "no"
// does not fire on "november".
func containsPhrase(text, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], phrase)
		if i == -1 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		beforeOK := start == 0 || !isWordByte(text[start-1])
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '\''
}
