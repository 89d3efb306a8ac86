package sql

import (
	"errors"
	"strings"
)

// ErrMultipleStatements indicates a generated query contained more than one
// statement. Templates are single SELECTs, so this only trips on a
// misconfigured catalog entry.
var ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")

// GuardStatement normalizes a generated query before execution: trailing
// whitespace and a trailing semicolon are stripped, and any remaining
// semicolon outside a quoted literal fails the query.
func GuardStatement(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return query, nil
	}

	normalized := strings.TrimRight(query, " \t\n\r")
	if strings.HasSuffix(normalized, ";") {
		normalized = strings.TrimRight(strings.TrimSuffix(normalized, ";"), " \t\n\r")
	}

	if semicolonOutsideLiterals(normalized) {
		return "", ErrMultipleStatements
	}
	return normalized, nil
}

// semicolonOutsideLiterals scans with a quote-state machine covering the
// three literal styles templates may use: single, double, and backtick.
func semicolonOutsideLiterals(query string) bool {
	var quote rune
	prev := rune(0)

	for _, ch := range query {
		if quote != 0 {
			// Backslash escapes apply inside single and double quotes;
			// the SQL doubled-quote escape re-enters on the next char.
			if ch == quote && (quote == '`' || prev != '\\') {
				quote = 0
			}
			prev = ch
			continue
		}
		switch ch {
		case ';':
			return true
		case '\'', '"', '`':
			quote = ch
		}
		prev = ch
	}
	return false
}
