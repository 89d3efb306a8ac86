package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimeResolver normalizes natural-language time expressions to canonical
// year-month form: a single "YYYYMM", an inclusive "YYYYMM-YYYYMM" range, or
// the "all" sentinel. Unrecognized text passes through unchanged.
//
// The grammar is an ordered rule table. Order matters: later rules may
// consume output of earlier ones, so the specific forms (year+month,
// quarters, fiscal tokens) run before the bare-year fallback to avoid
// corrupting partially rewritten text. Normalization is idempotent; the
// same text may flow through enrichment and extraction twice.
type TimeResolver struct {
	rules []timeRule
}

type timeRule struct {
	pattern *regexp.Regexp
	rewrite func(m []string, now time.Time) string
}

// NewTimeResolver builds the rule table.
func NewTimeResolver() *TimeResolver {
	return &TimeResolver{rules: []timeRule{
		// 1. Relative year and fiscal anchors on the current date.
		{
			pattern: regexp.MustCompile(`(?i)\bcurrent fiscal year\b`),
			rewrite: func(m []string, now time.Time) string {
				return fiscalYearRange(currentFiscalEndYear(now))
			},
		},
		{
			pattern: regexp.MustCompile(`(?i)\b(?:this |current )?half-term\b`),
			rewrite: func(m []string, now time.Time) string {
				end := currentFiscalEndYear(now)
				if m := int(now.Month()); m >= 4 && m <= 9 {
					return fiscalHalfRange(end, 1)
				}
				return fiscalHalfRange(end, 2)
			},
		},
		{
			pattern: regexp.MustCompile(`(?i)\b(?:this|current) year\b`),
			rewrite: func(m []string, now time.Time) string { return calendarYearRange(now.Year()) },
		},
		{
			pattern: regexp.MustCompile(`(?i)\blast year\b`),
			rewrite: func(m []string, now time.Time) string { return calendarYearRange(now.Year() - 1) },
		},
		{
			pattern: regexp.MustCompile(`(?i)\bnext year\b`),
			rewrite: func(m []string, now time.Time) string { return calendarYearRange(now.Year() + 1) },
		},
		// 2. Explicit year+month.
		{
			pattern: regexp.MustCompile(`\b(20\d{2}|\d{2})-year (\d{1,2})-month\b`),
			rewrite: func(m []string, now time.Time) string {
				month, _ := strconv.Atoi(m[2])
				if month < 1 || month > 12 {
					return m[0]
				}
				return yearMonth(promoteYear(m[1]), month)
			},
		},
		{
			pattern: regexp.MustCompile(`\b(20\d{2})[-/](0?[1-9]|1[0-2])\b`),
			rewrite: func(m []string, now time.Time) string {
				month, _ := strconv.Atoi(m[2])
				return yearMonth(promoteYear(m[1]), month)
			},
		},
		// 3. Natural quarter.
		{
			pattern: regexp.MustCompile(`(?i)\b(20\d{2}|\d{2})-year Q([1-4])\b`),
			rewrite: func(m []string, now time.Time) string {
				q, _ := strconv.Atoi(m[2])
				return calendarQuarterRange(promoteYear(m[1]), q)
			},
		},
		{
			pattern: regexp.MustCompile(`(?i)\b(20\d{2}|\d{2})-year (first|second|third|fourth|[1-4])(?:st|nd|rd|th)?[- ]quarter\b`),
			rewrite: func(m []string, now time.Time) string {
				return calendarQuarterRange(promoteYear(m[1]), quarterNumber(m[2]))
			},
		},
		// 4. Fiscal half, quarter, year. The fiscal year N starts April of
		// calendar year N-1 and ends March of calendar year N.
		{
			pattern: regexp.MustCompile(`(?i)\bFY\s*(\d{2}|20\d{2})\s*(1H|2H|H1|H2)\b`),
			rewrite: func(m []string, now time.Time) string {
				half := 1
				if h := strings.ToUpper(m[2]); h == "2H" || h == "H2" {
					half = 2
				}
				return fiscalHalfRange(promoteYear(m[1]), half)
			},
		},
		{
			pattern: regexp.MustCompile(`(?i)\bFY\s*(\d{2}|20\d{2})\s*Q([1-4])\b`),
			rewrite: func(m []string, now time.Time) string {
				q, _ := strconv.Atoi(m[2])
				return fiscalQuarterRange(promoteYear(m[1]), q)
			},
		},
		{
			pattern: regexp.MustCompile(`(?i)\bFY\s*(\d{2}|20\d{2})\b`),
			rewrite: func(m []string, now time.Time) string {
				return fiscalYearRange(promoteYear(m[1]))
			},
		},
		// 5. Bare year. Two-digit years are promoted by adding 2000.
		{
			pattern: regexp.MustCompile(`\b(20\d{2}|\d{2})-year\b`),
			rewrite: func(m []string, now time.Time) string {
				return calendarYearRange(promoteYear(m[1]))
			},
		},
		// 6. Year-to-year span.
		{
			pattern: regexp.MustCompile(`\b(20\d{2})\s*(?:-|~|to|through)\s*(20\d{2})\b`),
			rewrite: func(m []string, now time.Time) string {
				y1, _ := strconv.Atoi(m[1])
				y2, _ := strconv.Atoi(m[2])
				return fmt.Sprintf("%s-%s", yearMonth(y1, 1), yearMonth(y2, 12))
			},
		},
	}}
}

// Normalize rewrites every recognized time phrase in place.
func (r *TimeResolver) Normalize(text string, now time.Time) string {
	for _, rule := range r.rules {
		text = rule.pattern.ReplaceAllStringFunc(text, func(match string) string {
			m := rule.pattern.FindStringSubmatch(match)
			return rule.rewrite(m, now)
		})
	}
	return text
}

var (
	rangePattern      = regexp.MustCompile(`(20\d{4})-(20\d{4})`)
	singleYMPattern   = regexp.MustCompile(`(20\d{4})`)
	fiscalCodePattern = regexp.MustCompile(`(?i)(FY\d{2})`)
)

// ExtractRange pulls the time slot out of normalized text: the first
// canonical range, else the first single year-month, else a fiscal code
// (uppercased). Returns "" when nothing time-like is present.
func (r *TimeResolver) ExtractRange(text string) string {
	if m := rangePattern.FindStringSubmatch(text); m != nil {
		return m[1] + "-" + m[2]
	}
	if m := singleYMPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := fiscalCodePattern.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(m[1])
	}
	return ""
}

// allRangeStrongPatterns are phrases that always mean "no time filter".
var allRangeStrongPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\ball\s+time\b`),
	regexp.MustCompile(`(?i)\bany\s+time\b`),
	regexp.MustCompile(`(?i)\ball\s+range\b`),
	regexp.MustCompile(`(?i)\bno\s+time\s+filter\b`),
	regexp.MustCompile(`(?i)\bwithout\s+(?:a\s+)?time\s+filter\b`),
	regexp.MustCompile(`(?i)\bno\s+date\s+filter\b`),
	regexp.MustCompile(`(?i)\bno\s+time\s+limit\b`),
	regexp.MustCompile(`(?i)\b(?:don'?t|do\s+not)\s+(?:limit|restrict|filter)\s+(?:the\s+|by\s+)?(?:time|date|month)`),
	regexp.MustCompile(`(?i)\bunrestricted\s+(?:time|date)`),
}

// allRangeWeakTokens is the closed set of bare utterances that resolve to
// "all" only when the conversation is already engaged and no explicit time
// was extracted. The guard keeps a lone "all" mid-conversation from being
// treated as noise, without hijacking an opening message.
var allRangeWeakTokens = map[string]bool{
	"all":          true,
	"all time":     true,
	"any":          true,
	"any time":     true,
	"unrestricted": true,
	"no limit":     true,
}

// DetectAllRange reports whether the utterance asks for the unrestricted
// time sentinel. hasTime is true when an explicit time was already
// extracted; engaged is true when the conversation has an established KPI
// or scope.
func (r *TimeResolver) DetectAllRange(text string, hasTime, engaged bool) bool {
	for _, p := range allRangeStrongPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	if hasTime || !engaged {
		return false
	}
	return allRangeWeakTokens[strings.ToLower(strings.TrimSpace(text))]
}

// promoteYear converts a two- or four-digit year string to a full year.
func promoteYear(s string) int {
	y, _ := strconv.Atoi(s)
	if y < 100 {
		y += 2000
	}
	return y
}

func quarterNumber(s string) int {
	switch strings.ToLower(s) {
	case "first", "1":
		return 1
	case "second", "2":
		return 2
	case "third", "3":
		return 3
	default:
		return 4
	}
}

func yearMonth(year, month int) string {
	return fmt.Sprintf("%d%02d", year, month)
}

func calendarYearRange(year int) string {
	return fmt.Sprintf("%s-%s", yearMonth(year, 1), yearMonth(year, 12))
}

func calendarQuarterRange(year, q int) string {
	if q < 1 {
		q = 1
	}
	if q > 4 {
		q = 4
	}
	start := (q-1)*3 + 1
	return fmt.Sprintf("%s-%s", yearMonth(year, start), yearMonth(year, start+2))
}

func fiscalYearRange(endYear int) string {
	return fmt.Sprintf("%s-%s", yearMonth(endYear-1, 4), yearMonth(endYear, 3))
}

func fiscalHalfRange(endYear, half int) string {
	if half == 1 {
		return fmt.Sprintf("%s-%s", yearMonth(endYear-1, 4), yearMonth(endYear-1, 9))
	}
	return fmt.Sprintf("%s-%s", yearMonth(endYear-1, 10), yearMonth(endYear, 3))
}

func fiscalQuarterRange(endYear, q int) string {
	switch q {
	case 1:
		return fmt.Sprintf("%s-%s", yearMonth(endYear-1, 4), yearMonth(endYear-1, 6))
	case 2:
		return fmt.Sprintf("%s-%s", yearMonth(endYear-1, 7), yearMonth(endYear-1, 9))
	case 3:
		return fmt.Sprintf("%s-%s", yearMonth(endYear-1, 10), yearMonth(endYear-1, 12))
	default:
		return fmt.Sprintf("%s-%s", yearMonth(endYear, 1), yearMonth(endYear, 3))
	}
}

// currentFiscalEndYear returns the end year of the fiscal year containing
// now (fiscal years start in April).
func currentFiscalEndYear(now time.Time) int {
	if int(now.Month()) >= 4 {
		return now.Year() + 1
	}
	return now.Year()
}
