package sql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kpibot-inc/kpibot-engine/pkg/models"
)

// ConditionSet is the WHERE fragment generated from a resolved time range
// and scope set. The fragment references ordinal placeholders; Args carries
// the values to bind. Scope values are never concatenated into the text.
type ConditionSet struct {
	Fragment string
	Args     []any
	Dropped  []models.ScopeToken
}

// wherePart returns the fragment ready for substitution into a template's
// {conditions} placeholder: empty, or " AND <fragment>".
func (c *ConditionSet) wherePart() string {
	if c.Fragment == "" {
		return ""
	}
	return " AND " + c.Fragment
}

// conditionBuilder accumulates AND-joined conditions with sequential
// placeholders.
type conditionBuilder struct {
	conds []string
	args  []any
}

func (b *conditionBuilder) bind(value any) string {
	b.args = append(b.args, value)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *conditionBuilder) add(cond string) {
	b.conds = append(b.conds, cond)
}

// BuildConditions turns the resolved slots into a ConditionSet.
//
// Time handling, in order: the "all" sentinel emits no time condition; a
// fiscal code emits an inclusive bound over the computed fiscal months; a
// start-end range emits an inclusive bound; a single YYYYMM emits equality;
// no time at all emits equality against the table's current maximum via a
// sub-query, so the latest period tracks the table as it fills.
//
// Scope handling: tokens are grouped by category and mapped to columns via
// the KPI definition; one value is equality, several are an inclusion list.
// Categories the KPI does not map are dropped silently, as are values that
// trip the injection guard.
func BuildConditions(def *models.KPIDefinition, timeRange string, scope *models.ScopeSet) (*ConditionSet, error) {
	timeCol := def.EffectiveTimeColumn()
	if !ValidIdentifier(timeCol) {
		return nil, fmt.Errorf("time column %q is not a valid identifier", timeCol)
	}
	if !ValidIdentifier(def.TableName) {
		return nil, fmt.Errorf("table name %q is not a valid identifier", def.TableName)
	}

	b := &conditionBuilder{}
	result := &ConditionSet{}

	trimmed := strings.TrimSpace(timeRange)
	switch {
	case strings.EqualFold(trimmed, "all"):
		// No time condition.
	case trimmed != "":
		if start, end, ok := fiscalBounds(trimmed); ok {
			b.add(fmt.Sprintf("%s >= %s AND %s <= %s", timeCol, b.bind(start), timeCol, b.bind(end)))
		} else if start, end, ok := splitRange(trimmed); ok {
			b.add(fmt.Sprintf("%s >= %s AND %s <= %s", timeCol, b.bind(start), timeCol, b.bind(end)))
		} else {
			b.add(fmt.Sprintf("%s = %s", timeCol, b.bind(trimmed)))
		}
	default:
		// Latest-period default.
		b.add(fmt.Sprintf("%s = (SELECT MAX(%s) FROM %s)", timeCol, timeCol, def.TableName))
	}

	if scope != nil {
		for _, category := range scope.Categories() {
			col, ok := def.ScopeColumn(category)
			if !ok || !ValidIdentifier(col) {
				for _, v := range scope.Values(category) {
					result.Dropped = append(result.Dropped, models.ScopeToken{Category: category, Value: v})
				}
				continue
			}

			var clean []string
			for _, v := range scope.Values(category) {
				if hostileValue(v) {
					result.Dropped = append(result.Dropped, models.ScopeToken{Category: category, Value: v})
					continue
				}
				clean = append(clean, v)
			}

			switch len(clean) {
			case 0:
			case 1:
				b.add(fmt.Sprintf("%s = %s", col, b.bind(clean[0])))
			default:
				placeholders := make([]string, len(clean))
				for i, v := range clean {
					placeholders[i] = b.bind(v)
				}
				b.add(fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")))
			}
		}
	}

	result.Fragment = strings.Join(b.conds, " AND ")
	result.Args = b.args
	return result, nil
}

// fiscalBounds resolves an FYnn / FY20nn code to its start and end
// year-months. Fiscal year N runs April N-1 through March N.
func fiscalBounds(timeRange string) (start, end string, ok bool) {
	upper := strings.ToUpper(timeRange)
	if !strings.HasPrefix(upper, "FY") {
		return "", "", false
	}
	digits := upper[2:]
	if len(digits) != 2 && len(digits) != 4 {
		return "", "", false
	}
	year, err := strconv.Atoi(digits)
	if err != nil {
		return "", "", false
	}
	if len(digits) == 2 {
		year += 2000
	}
	return fmt.Sprintf("%d04", year-1), fmt.Sprintf("%d03", year), true
}

// splitRange splits a canonical "YYYYMM-YYYYMM" pair.
func splitRange(timeRange string) (start, end string, ok bool) {
	start, end, found := strings.Cut(timeRange, "-")
	if !found || start == "" || end == "" {
		return "", "", false
	}
	return start, end, true
}
