package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// ScopeValueCheck describes an injection pattern detected in a scope value.
// Scope values are always bound as parameters, so a hostile value cannot
// alter the query; the check exists to keep such values out of the audit
// trail and result filters entirely.
type ScopeValueCheck struct {
	IsSQLi      bool
	Fingerprint string
	Value       string
}

// CheckScopeValue runs libinjection against a scope value. Returns nil when
// the value is clean.
func CheckScopeValue(value string) *ScopeValueCheck {
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &ScopeValueCheck{
		IsSQLi:      true,
		Fingerprint: string(fingerprint),
		Value:       value,
	}
}

// hostileValue is the condition builder's drop test.
func hostileValue(value string) bool {
	return CheckScopeValue(value) != nil
}
