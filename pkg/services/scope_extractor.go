package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kpibot-inc/kpibot-engine/pkg/models"
)

// DimensionLookup is the external store the extractor consults for
// lookup-assisted fuzzy resolution. Implementations match case-insensitively
// and honor optional equality/inclusion filters.
type DimensionLookup interface {
	FindExactMatch(ctx context.Context, table, column, value string, filters map[string][]string) (string, bool, error)
}

// ScopeExtractorConfig tunes the deterministic extraction heuristics.
type ScopeExtractorConfig struct {
	KnownProducts []string

	// SerialWindowMin/Max bound the YYYYMM envelope: a six-digit number
	// inside this window is treated as a date, not a tool serial.
	SerialWindowMin int
	SerialWindowMax int

	// MaxLookupCandidates caps per-turn external lookups.
	MaxLookupCandidates int
}

// ScopeExtractor pulls category:value tokens out of utterance text. Four
// sources apply in order, each adding tokens not already present: explicit
// tags, known product codes, bare serial numbers, and lookup-assisted
// resolution against the KPI's organization and tools columns.
type ScopeExtractor struct {
	cfg             ScopeExtractorConfig
	productPatterns map[string]*regexp.Regexp
	lookup          DimensionLookup
	logger          *zap.Logger
}

const (
	scopeCategoryProduct      = "product"
	scopeCategoryOrganization = "organization"
	scopeCategoryTools        = "tools"
)

var (
	explicitTagPattern = regexp.MustCompile(`(?i)\b(product|organization|tools|tool):(\S+)`)
	serialPattern      = regexp.MustCompile(`\b(\d{6})\b`)
	candidatePattern   = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9_-]{1,49}`)
	fiscalTokenPattern = regexp.MustCompile(`^FY\d{2,4}$`)
	yearMonthToken     = regexp.MustCompile(`^20\d{4}$`)

	// reservedWords are short tokens that look like identifiers but never
	// name an organization or tool.
	reservedWords = map[string]bool{
		"kpi": true, "sql": true, "sn": true,
		"tool": true, "tools": true, "product": true, "organization": true,
	}
)

// NewScopeExtractor creates an extractor. lookup may be nil, in which case
// the lookup-assisted source is skipped.
func NewScopeExtractor(cfg ScopeExtractorConfig, lookup DimensionLookup, logger *zap.Logger) *ScopeExtractor {
	if cfg.MaxLookupCandidates <= 0 {
		cfg.MaxLookupCandidates = 8
	}
	patterns := make(map[string]*regexp.Regexp, len(cfg.KnownProducts))
	for _, p := range cfg.KnownProducts {
		// Word-boundary match without lookarounds: the code must not touch
		// another identifier character on either side.
		patterns[p] = regexp.MustCompile(`(?i)(?:^|[^A-Za-z0-9_])` + regexp.QuoteMeta(p) + `(?:[^A-Za-z0-9_]|$)`)
	}
	return &ScopeExtractor{
		cfg:             cfg,
		productPatterns: patterns,
		lookup:          lookup,
		logger:          logger.Named("scope"),
	}
}

// Extract returns the scope tokens found in text, in discovery order.
// timeRange is the already-resolved time slot, used to keep year-months out
// of the serial source. carried is the context's accumulated scope, used
// only for deduplication; after a KPI reset the caller passes an empty
// set, so dedup refers solely to tokens found earlier in this utterance.
// def may be nil when no KPI is resolved yet; the lookup source needs it.
func (e *ScopeExtractor) Extract(ctx context.Context, text, timeRange string, carried *models.ScopeSet, def *models.KPIDefinition) *models.ScopeSet {
	found := models.NewScopeSet()
	present := func(tok models.ScopeToken) bool {
		return found.Contains(tok) || (carried != nil && carried.Contains(tok))
	}

	// 1. Explicit category:value tags.
	for _, m := range explicitTagPattern.FindAllStringSubmatch(text, -1) {
		if tok, ok := models.ParseScopeToken(m[1] + ":" + m[2]); ok && !present(tok) {
			found.Add(tok)
		}
	}

	// 2. Known product codes as whole tokens.
	for _, p := range e.cfg.KnownProducts {
		if e.productPatterns[p].MatchString(text) {
			tok := models.ScopeToken{Category: scopeCategoryProduct, Value: p}
			if !present(tok) {
				found.Add(tok)
			}
		}
	}

	// 3. Bare six-digit tokens as tool serials, unless they are dates.
	for _, m := range serialPattern.FindAllStringSubmatch(text, -1) {
		sn := m[1]
		if timeRange != "" && strings.Contains(timeRange, sn) {
			continue
		}
		if n, err := strconv.Atoi(sn); err == nil &&
			strings.HasPrefix(sn, "20") &&
			n >= e.cfg.SerialWindowMin && n <= e.cfg.SerialWindowMax {
			continue
		}
		tok := models.ScopeToken{Category: scopeCategoryTools, Value: sn}
		if !present(tok) {
			found.Add(tok)
		}
	}

	// 4. Lookup-assisted resolution.
	if e.lookup != nil && def != nil {
		e.resolveAgainstStore(ctx, text, carried, found, def)
	}

	return found
}

// resolveAgainstStore tries to match free-text tokens against the KPI's
// organization and tools columns. Lookups are point queries capped at a
// fixed candidate count; failures degrade silently to rule-only extraction.
func (e *ScopeExtractor) resolveAgainstStore(ctx context.Context, text string, carried, found *models.ScopeSet, def *models.KPIDefinition) {
	orgCol, hasOrg := def.ScopeColumn(scopeCategoryOrganization)
	toolsCol, hasTools := def.ScopeColumn(scopeCategoryTools)
	if def.TableName == "" || (!hasOrg && !hasTools) {
		return
	}

	candidates := e.lookupCandidates(text)

	for _, token := range candidates {
		if hasOrg {
			tok := models.ScopeToken{Category: scopeCategoryOrganization}
			filters := e.scopeFilters(def, carried, found, scopeCategoryOrganization)
			match, ok, err := e.lookup.FindExactMatch(ctx, def.TableName, orgCol, token, filters)
			if err != nil {
				e.logger.Debug("organization lookup failed", zap.String("token", token), zap.Error(err))
			} else if ok {
				tok.Value = match
				if !found.Contains(tok) && (carried == nil || !carried.Contains(tok)) {
					found.Add(tok)
				}
			}
		}

		if hasTools {
			tok := models.ScopeToken{Category: scopeCategoryTools}
			filters := e.scopeFilters(def, carried, found, scopeCategoryTools)
			match, ok, err := e.lookup.FindExactMatch(ctx, def.TableName, toolsCol, token, filters)
			if err != nil {
				e.logger.Debug("tools lookup failed", zap.String("token", token), zap.Error(err))
			} else if ok {
				tok.Value = match
				if !found.Contains(tok) && (carried == nil || !carried.Contains(tok)) {
					found.Add(tok)
				}
			}
		}
	}
}

// lookupCandidates collects short alphanumeric tokens worth a point lookup,
// excluding fiscal codes, six-digit year-months, known product codes, and
// reserved words. The list is capped to bound lookup cost.
func (e *ScopeExtractor) lookupCandidates(text string) []string {
	var candidates []string
	seen := make(map[string]bool)

	for _, token := range candidatePattern.FindAllString(text, -1) {
		if len(candidates) >= e.cfg.MaxLookupCandidates {
			break
		}
		upper := strings.ToUpper(token)
		if fiscalTokenPattern.MatchString(upper) {
			continue
		}
		if yearMonthToken.MatchString(token) {
			continue
		}
		if e.isKnownProduct(upper) {
			continue
		}
		if reservedWords[strings.ToLower(token)] {
			continue
		}
		if !seen[token] {
			seen[token] = true
			candidates = append(candidates, token)
		}
	}
	return candidates
}

func (e *ScopeExtractor) isKnownProduct(upper string) bool {
	for _, p := range e.cfg.KnownProducts {
		if strings.ToUpper(p) == upper {
			return true
		}
	}
	return false
}

// scopeFilters maps already-established scope tokens (excluding the
// category being resolved) onto the KPI's columns, narrowing the lookup.
func (e *ScopeExtractor) scopeFilters(def *models.KPIDefinition, carried, found *models.ScopeSet, excludeCategory string) map[string][]string {
	filters := make(map[string][]string)
	add := func(set *models.ScopeSet) {
		if set == nil {
			return
		}
		for _, t := range set.Tokens() {
			if t.Category == excludeCategory {
				continue
			}
			if col, ok := def.ScopeColumn(t.Category); ok {
				filters[col] = append(filters[col], t.Value)
			}
		}
	}
	add(carried)
	add(found)
	if len(filters) == 0 {
		return nil
	}
	return filters
}

// String implements fmt.Stringer for logging.
func (c ScopeExtractorConfig) String() string {
	return fmt.Sprintf("products=%d serial_window=%d..%d max_lookups=%d",
		len(c.KnownProducts), c.SerialWindowMin, c.SerialWindowMax, c.MaxLookupCandidates)
}
