package models

// ResolvedContext is the accumulating slot state of one conversation. It is
// rebuilt per request by replaying the message history; it is never shared
// between concurrently processed turns.
type ResolvedContext struct {
	// KPI is the resolved KPI key, empty when not yet determined.
	KPI string

	// TimeRange is the canonical time slot: "all", "YYYYMM",
	// "YYYYMM-YYYYMM", or an uppercased fiscal code such as "FY26".
	// Empty when not yet determined.
	TimeRange string

	// Scope holds the accumulated scope tokens.
	Scope *ScopeSet

	// ScopePrompted records that the assistant already asked for scope once
	// in this conversation; a second ask is suppressed.
	ScopePrompted bool

	// FinishedSelection records that the user declined to add more scope.
	FinishedSelection bool

	// UnsupportedKPINotified records that the fixed unsupported-KPI apology
	// was already delivered.
	UnsupportedKPINotified bool
}

// NewResolvedContext returns an empty context with an initialized scope set.
func NewResolvedContext() *ResolvedContext {
	return &ResolvedContext{Scope: NewScopeSet()}
}

// Clone returns an independent copy.
func (c *ResolvedContext) Clone() *ResolvedContext {
	out := *c
	if c.Scope != nil {
		out.Scope = c.Scope.Clone()
	} else {
		out.Scope = NewScopeSet()
	}
	return &out
}

// ResetSlots clears time and scope while keeping conversation-level flags.
// Called when a turn switches to a different KPI: a KPI switch starts a
// fresh slot set, and re-extraction of the same utterance repopulates
// whatever it mentions.
func (c *ResolvedContext) ResetSlots() {
	c.TimeRange = ""
	c.Scope = NewScopeSet()
	c.FinishedSelection = false
}

// ChatMessage is one entry of the replayed conversation history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message roles recognized during replay.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Slot names reported by the completion policy.
const (
	SlotKPI       = "kpi"
	SlotTimeRange = "time_range"
	SlotScope     = "scope"
)

// Analysis is the outcome of processing one user turn against the carried
// context: the updated slots plus what is still missing.
type Analysis struct {
	KPI               string
	TimeRange         string
	Scope             *ScopeSet
	FinishedSelection bool

	// Missing lists unresolved slot names in ask-first order.
	Missing []string

	// ProactiveScope is set when some scope categories are covered but the
	// KPI allows more; MissingScopeCategories lists the uncovered ones.
	ProactiveScope         bool
	MissingScopeCategories []string

	// ResponseMessage carries the fixed unsupported-KPI reply when the turn
	// terminates without a usable KPI.
	ResponseMessage        string
	UnsupportedKPI         bool
	UnsupportedKPINotified bool
}

// Ready reports whether every slot is resolved and a query can be built.
func (a *Analysis) Ready() bool {
	return len(a.Missing) == 0 && a.KPI != "" && a.ResponseMessage == ""
}

// AsksScope reports whether this turn's reply will ask the user to narrow
// scope, either as a hard missing slot or as a proactive suggestion.
func (a *Analysis) AsksScope() bool {
	for _, m := range a.Missing {
		if m == SlotScope {
			return true
		}
	}
	return a.ProactiveScope
}

// Context converts the analysis into the carried context for the next turn.
func (a *Analysis) Context(scopePrompted bool) *ResolvedContext {
	scope := a.Scope
	if scope == nil {
		scope = NewScopeSet()
	}
	return &ResolvedContext{
		KPI:                    a.KPI,
		TimeRange:              a.TimeRange,
		Scope:                  scope.Clone(),
		ScopePrompted:          scopePrompted,
		FinishedSelection:      a.FinishedSelection,
		UnsupportedKPINotified: a.UnsupportedKPINotified,
	}
}
