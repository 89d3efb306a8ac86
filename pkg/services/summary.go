package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kpibot-inc/kpibot-engine/pkg/models"
)

// Summarize renders a query result as a markdown fragment for the chat
// reply. Single values become one bold line, the canonical month/value
// shape becomes a two-column table, and anything else becomes a generic
// table with friendly column labels from the KPI definition.
func Summarize(def *models.KPIDefinition, result *QueryResult) string {
	label := def.Label
	if label == "" {
		label = def.Key
	}

	if result == nil || len(result.Rows) == 0 {
		return fmt.Sprintf("No data found for **%s** with the selected filters.", label)
	}

	if isMonthValueShape(result) {
		if len(result.Rows) == 1 {
			row := result.Rows[0]
			return fmt.Sprintf("**%s** for %s: **%s**",
				label, formatValue(row["month"]), formatValue(row["value"]))
		}
		return monthValueTable(label, result)
	}

	if len(result.Rows) == 1 && len(result.Columns) == 1 {
		return fmt.Sprintf("**%s**: **%s**",
			label, formatValue(result.Rows[0][result.Columns[0]]))
	}

	return genericTable(def, result)
}

func isMonthValueShape(result *QueryResult) bool {
	return len(result.Columns) == 2 &&
		result.Columns[0] == "month" && result.Columns[1] == "value"
}

func monthValueTable(label string, result *QueryResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "| Month | %s |\n| --- | --- |\n", label)
	for _, row := range result.Rows {
		fmt.Fprintf(&b, "| %s | %s |\n", formatValue(row["month"]), formatValue(row["value"]))
	}
	return strings.TrimRight(b.String(), "\n")
}

func genericTable(def *models.KPIDefinition, result *QueryResult) string {
	var b strings.Builder

	b.WriteString("|")
	for _, col := range result.Columns {
		fmt.Fprintf(&b, " %s |", columnLabel(def, col))
	}
	b.WriteString("\n|")
	for range result.Columns {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")

	for _, row := range result.Rows {
		b.WriteString("|")
		for _, col := range result.Columns {
			fmt.Fprintf(&b, " %s |", formatValue(row[col]))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func columnLabel(def *models.KPIDefinition, col string) string {
	if label, ok := def.ColumnLabels[col]; ok {
		return label
	}
	return col
}

// formatValue renders a cell for display. Floats drop insignificant
// trailing zeros so counts read as integers.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int:
		return strconv.Itoa(val)
	case time.Time:
		return val.Format("2006-01-02")
	default:
		return fmt.Sprintf("%v", val)
	}
}
