package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kpibot-inc/kpibot-engine/pkg/config"
	"github.com/kpibot-inc/kpibot-engine/pkg/models"
)

// UnsupportedKPIAudit records questions about metrics the catalog does not
// cover, so the catalog owners can see what users actually ask for.
type UnsupportedKPIAudit interface {
	Record(ctx context.Context, query, timeRange string, scope []string) error
}

// IntentService runs the single-turn analysis pipeline: KPI resolution,
// time normalization, scope extraction, optional LLM enrichment, and the
// slot completion policy. It holds no per-conversation state; the carried
// context comes in with every call.
type IntentService struct {
	catalog  *config.KPICatalog
	kpis     *KpiResolver
	times    *TimeResolver
	scopes   *ScopeExtractor
	enricher *Enricher
	policy   *SlotCompletionPolicy
	audit    UnsupportedKPIAudit
	logger   *zap.Logger
}

// NewIntentService wires the pipeline. audit may be nil, in which case
// unsupported-KPI events are only logged.
func NewIntentService(
	catalog *config.KPICatalog,
	kpis *KpiResolver,
	times *TimeResolver,
	scopes *ScopeExtractor,
	enricher *Enricher,
	policy *SlotCompletionPolicy,
	audit UnsupportedKPIAudit,
	logger *zap.Logger,
) *IntentService {
	return &IntentService{
		catalog:  catalog,
		kpis:     kpis,
		times:    times,
		scopes:   scopes,
		enricher: enricher,
		policy:   policy,
		audit:    audit,
		logger:   logger.Named("intent"),
	}
}

// Analyze processes one user utterance against the carried context and
// returns the updated slot state plus what is still missing. carried is not
// mutated.
func (s *IntentService) Analyze(ctx context.Context, utterance string, carried *models.ResolvedContext, now time.Time) *models.Analysis {
	working := carried.Clone()

	key, reset := s.kpis.Resolve(utterance, working.KPI)
	if reset {
		// A KPI switch starts a fresh slot set; the same utterance is then
		// re-extracted so any slots it mentions survive the reset.
		working.ResetSlots()
	}
	working.KPI = key

	var def *models.KPIDefinition
	if key != "" {
		def, _ = s.catalog.Get(key)
	}

	normalized := s.times.Normalize(utterance, now)

	timeRange := working.TimeRange
	extracted := s.times.ExtractRange(normalized)
	if extracted != "" {
		timeRange = extracted
	}
	// An explicit time extracted from this utterance always wins over an
	// all-range phrase in the same utterance, and an established time
	// (carried or just extracted) blocks the weak bare-token path.
	engaged := working.KPI != "" || working.Scope.Len() > 0
	hasTime := working.TimeRange != "" || extracted != ""
	if extracted == "" && s.times.DetectAllRange(utterance, hasTime, engaged) {
		timeRange = "all"
	}

	found := s.scopes.Extract(ctx, normalized, timeRange, working.Scope, def)
	merged := working.Scope.Clone()
	for _, tok := range found.Tokens() {
		merged.Add(tok)
	}

	analysis := &models.Analysis{
		KPI:                    working.KPI,
		TimeRange:              timeRange,
		Scope:                  merged,
		FinishedSelection:      working.FinishedSelection,
		UnsupportedKPINotified: working.UnsupportedKPINotified,
	}

	if s.enricher != nil && (analysis.KPI == "" || analysis.TimeRange == "") {
		s.enricher.Enrich(ctx, analysis, utterance, now)
		if analysis.KPI != "" && def == nil {
			def, _ = s.catalog.Get(analysis.KPI)
		}
	}

	s.policy.Evaluate(analysis, def, utterance, working.ScopePrompted)

	if analysis.UnsupportedKPI {
		s.handleUnsupported(ctx, analysis, utterance)
	}

	s.logger.Debug("turn analyzed",
		zap.String("kpi", analysis.KPI),
		zap.String("time_range", analysis.TimeRange),
		zap.Strings("scope", analysis.Scope.Strings()),
		zap.Strings("missing", analysis.Missing),
		zap.Bool("reset", reset),
	)

	return analysis
}

// handleUnsupported records the audit event once per conversation and marks
// the apology as delivered.
func (s *IntentService) handleUnsupported(ctx context.Context, analysis *models.Analysis, utterance string) {
	if !analysis.UnsupportedKPINotified {
		s.logger.Info("unsupported kpi request",
			zap.String("query", utterance),
			zap.String("time_range", analysis.TimeRange),
			zap.Strings("scope", analysis.Scope.Strings()),
		)
		if s.audit != nil {
			if err := s.audit.Record(ctx, utterance, analysis.TimeRange, analysis.Scope.Strings()); err != nil {
				s.logger.Warn("unsupported kpi audit write failed", zap.Error(err))
			}
		}
	}
	analysis.UnsupportedKPINotified = true
}
