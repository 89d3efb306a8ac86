package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kpibot-inc/kpibot-engine/pkg/config"
	"github.com/kpibot-inc/kpibot-engine/pkg/llm"
	"github.com/kpibot-inc/kpibot-engine/pkg/models"
)

// enrichmentResult is the JSON contract the model is asked to produce.
type enrichmentResult struct {
	KPI               string   `json:"kpi"`
	TimeRange         string   `json:"time_range"`
	Scope             []string `json:"scope"`
	FinishedSelection bool     `json:"finished_selection"`
}

const enrichmentSystemMessage = "You extract structured slots from KPI questions. " +
	"Respond with a single JSON object and nothing else."

// Enricher runs the optional LLM pass that fills slots the deterministic
// extractors could not. Its merge is strictly additive: it never overwrites
// a slot the rules already resolved, so a wrong model answer can only cost
// a clarification turn, never corrupt established state.
type Enricher struct {
	client  llm.Client
	catalog *config.KPICatalog
	timeout time.Duration
	logger  *zap.Logger
}

// NewEnricher creates an enricher. client may be nil when enrichment is
// disabled; Enrich is then a no-op.
func NewEnricher(client llm.Client, catalog *config.KPICatalog, cfg config.EnrichmentConfig, logger *zap.Logger) *Enricher {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if !cfg.Enabled {
		client = nil
	}
	return &Enricher{
		client:  client,
		catalog: catalog,
		timeout: timeout,
		logger:  logger.Named("enrichment"),
	}
}

// Enrich makes one blocking model call and merges the result into analysis.
// Any failure (transport, timeout, unparseable response) discards the model
// output entirely and leaves the analysis untouched.
func (e *Enricher) Enrich(ctx context.Context, analysis *models.Analysis, utterance string, now time.Time) {
	if e.client == nil {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	prompt := e.buildPrompt(analysis, utterance, now)
	response, err := e.client.GenerateResponse(callCtx, prompt, enrichmentSystemMessage, 0.0)
	if err != nil {
		e.logger.Warn("enrichment call failed", zap.Error(err))
		return
	}

	result, err := llm.ParseJSONResponse[enrichmentResult](response)
	if err != nil {
		e.logger.Debug("enrichment response discarded", zap.Error(err))
		return
	}

	e.merge(analysis, result)
}

// merge applies the additive rules: only unset kpi/time_range are filled,
// scope tokens are added never removed, finished_selection can only be
// switched on.
func (e *Enricher) merge(analysis *models.Analysis, result enrichmentResult) {
	if analysis.KPI == "" && result.KPI != "" {
		if def, ok := e.catalog.Resolve(result.KPI); ok {
			analysis.KPI = def.Key
		}
	}
	if analysis.TimeRange == "" && result.TimeRange != "" {
		if canonical := canonicalTimeValue(result.TimeRange); canonical != "" {
			analysis.TimeRange = canonical
		}
	}
	if analysis.Scope == nil {
		analysis.Scope = models.NewScopeSet()
	}
	for _, raw := range result.Scope {
		if tok, ok := models.ParseScopeToken(raw); ok {
			analysis.Scope.Add(tok)
		}
	}
	if result.FinishedSelection {
		analysis.FinishedSelection = true
	}
}

var canonicalTimePattern = regexp.MustCompile(`^(?:20\d{4}(?:-20\d{4})?|(?i:FY\d{2}))$`)

// canonicalTimeValue accepts only values already in canonical form, so the
// model cannot smuggle free text into the time slot.
func canonicalTimeValue(s string) string {
	s = strings.TrimSpace(s)
	if s == "all" {
		return s
	}
	if canonicalTimePattern.MatchString(s) {
		return strings.ToUpper(s)
	}
	return ""
}

// buildPrompt lays out the current slot state, the KPI catalog, and the
// utterance for the model.
func (e *Enricher) buildPrompt(analysis *models.Analysis, utterance string, now time.Time) string {
	var b strings.Builder

	b.WriteString("Today's date: ")
	b.WriteString(now.Format("2006-01-02"))
	b.WriteString("\n\nSupported KPIs:\n")

	descriptions := e.catalog.Descriptions()
	keys := make([]string, 0, len(descriptions))
	for k := range descriptions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, descriptions[k])
	}

	b.WriteString("\nCurrent slot state:\n")
	fmt.Fprintf(&b, "- kpi: %q\n", analysis.KPI)
	fmt.Fprintf(&b, "- time_range: %q\n", analysis.TimeRange)
	if analysis.Scope != nil && analysis.Scope.Len() > 0 {
		fmt.Fprintf(&b, "- scope: %s\n", strings.Join(analysis.Scope.Strings(), ", "))
	} else {
		b.WriteString("- scope: (none)\n")
	}

	if analysis.KPI != "" {
		if def, ok := e.catalog.Get(analysis.KPI); ok && len(def.AllowedScopes) > 0 {
			fmt.Fprintf(&b, "\nScope categories for this KPI: %s\n", strings.Join(def.AllowedScopes, ", "))
		}
	}

	b.WriteString("\nUser message:\n")
	b.WriteString(utterance)
	b.WriteString("\n\nFill only slots that are currently empty. Reply with JSON: ")
	b.WriteString(`{"kpi": "", "time_range": "", "scope": ["category:value"], "finished_selection": false}`)
	b.WriteString("\nUse canonical time form YYYYMM, YYYYMM-YYYYMM, or \"all\". ")
	b.WriteString("Leave a field empty if the message does not determine it.")

	return b.String()
}
