package sql

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kpibot-inc/kpibot-engine/pkg/models"
)

var (
	// ErrInvalidTemplate indicates a KPI sql_template without the required
	// SELECT...FROM shape. This is a configuration defect, not a runtime
	// condition, and is never retried.
	ErrInvalidTemplate = errors.New("sql template missing SELECT...FROM clause")
)

// conditionsPlaceholder is the literal token templates may embed where the
// generated WHERE fragment is substituted.
const conditionsPlaceholder = "{conditions}"

var selectFromPattern = regexp.MustCompile(`(?is)\bSELECT\b(.+?)\bFROM\b(.+)$`)

// SplitSelectFrom splits a template into its SELECT expression list and the
// remainder after FROM. Returns ErrInvalidTemplate when either part is
// absent.
func SplitSelectFrom(template string) (selectClause, fromClause string, err error) {
	m := selectFromPattern.FindStringSubmatch(template)
	if m == nil {
		return "", "", ErrInvalidTemplate
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), nil
}

// SplitSelectExpressions splits a SELECT expression list on top-level commas.
// Commas inside parentheses or inside single-, double-, or backtick-quoted
// literals are not separators.
func SplitSelectExpressions(selectClause string) []string {
	var exprs []string
	var current strings.Builder
	depth := 0
	var quote rune

	for _, ch := range selectClause {
		if quote != 0 {
			current.WriteRune(ch)
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"', '`':
			quote = ch
			current.WriteRune(ch)
		case '(':
			depth++
			current.WriteRune(ch)
		case ')':
			if depth > 0 {
				depth--
			}
			current.WriteRune(ch)
		case ',':
			if depth == 0 {
				if expr := strings.TrimSpace(current.String()); expr != "" {
					exprs = append(exprs, expr)
				}
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}
	if expr := strings.TrimSpace(current.String()); expr != "" {
		exprs = append(exprs, expr)
	}
	return exprs
}

var trailingAliasPattern = regexp.MustCompile("(?i)\\s+AS\\s+[`'\"]?[A-Za-z0-9_]+[`'\"]?\\s*$")

// StripTrailingAlias removes a trailing "AS alias" from a SELECT expression.
func StripTrailingAlias(expr string) string {
	return strings.TrimSpace(trailingAliasPattern.ReplaceAllString(expr, ""))
}

// Query is a generated, executable query: SQL text plus bound arguments.
type Query struct {
	SQL  string
	Args []any

	// DroppedScope lists scope tokens excluded from the conditions, either
	// because the KPI maps no column for their category or because the
	// value failed the injection guard.
	DroppedScope []models.ScopeToken
}

// BuildQuery expands a KPI's template into the canonical two-column
// month/value aggregation with the resolved time range and scope applied.
func BuildQuery(def *models.KPIDefinition, timeRange string, scope *models.ScopeSet) (*Query, error) {
	monthCol := def.EffectiveTimeColumn()
	if !ValidIdentifier(monthCol) {
		return nil, fmt.Errorf("time column %q is not a valid identifier", monthCol)
	}

	selectClause, fromClause, err := SplitSelectFrom(def.SQLTemplate)
	if err != nil {
		return nil, err
	}

	valueExpr := selectClause
	if exprs := SplitSelectExpressions(selectClause); len(exprs) > 0 {
		valueExpr = exprs[0]
	}
	valueExpr = StripTrailingAlias(valueExpr)

	conds, err := BuildConditions(def, timeRange, scope)
	if err != nil {
		return nil, err
	}

	base := fmt.Sprintf("SELECT %s AS month, %s AS value\nFROM %s", monthCol, valueExpr, fromClause)
	sql := strings.ReplaceAll(base, conditionsPlaceholder, conds.wherePart())
	sql += fmt.Sprintf("\nGROUP BY %s\nORDER BY %s ASC", monthCol, monthCol)

	return &Query{SQL: sql, Args: conds.Args, DroppedScope: conds.Dropped}, nil
}

// BuildDetailQuery rewrites the template into a SELECT * detail query with
// the same conditions, used for row-level export.
func BuildDetailQuery(def *models.KPIDefinition, timeRange string, scope *models.ScopeSet) (*Query, error) {
	_, fromClause, err := SplitSelectFrom(def.SQLTemplate)
	if err != nil {
		return nil, err
	}

	conds, err := BuildConditions(def, timeRange, scope)
	if err != nil {
		return nil, err
	}

	sql := strings.ReplaceAll("SELECT * FROM "+fromClause, conditionsPlaceholder, conds.wherePart())
	return &Query{SQL: sql, Args: conds.Args, DroppedScope: conds.Dropped}, nil
}
