// Package sql builds and validates the queries generated from KPI templates.
package sql

import "regexp"

// identifierPattern is the strict allow-list for table and column names.
// Identifier validation is the template engine's only injection defense;
// everything else is carried as bound parameters.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidIdentifier reports whether s is safe to interpolate into generated
// SQL as a table or column name.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}
