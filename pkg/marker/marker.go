// Package marker implements the embedded context marker carried inside
// assistant messages. The marker is an HTML comment holding a base64url
// encoded JSON record, so it survives any transport that preserves message
// text while staying invisible in rendered markdown.
package marker

import (
	"encoding/base64"
	"encoding/json"
	"regexp"
	"strings"
)

// Record is the structured state embedded in an assistant message. A replay
// of the conversation merges these fields back into the running context.
type Record struct {
	KPI                    string   `json:"kpi,omitempty"`
	TimeRange              string   `json:"time_range,omitempty"`
	Scope                  []string `json:"scope,omitempty"`
	MissingParams          []string `json:"missing_params,omitempty"`
	MissingScopeCategories []string `json:"missing_scope_categories,omitempty"`
	ScopePrompted          bool     `json:"scope_prompted,omitempty"`
	UnsupportedKPI         bool     `json:"unsupported_kpi,omitempty"`
	UnsupportedKPINotified bool     `json:"unsupported_kpi_notified,omitempty"`
	SQL                    string   `json:"sql,omitempty"`
}

const (
	prefix = "<!-- KPIBOT_META: "
	suffix = " -->"
)

var markerPattern = regexp.MustCompile(`<!--\s*KPIBOT_META:\s*([A-Za-z0-9_\-]+=*)\s*-->`)

// Encode serializes the record into a single opaque comment token.
func Encode(r Record) string {
	payload, err := json.Marshal(r)
	if err != nil {
		// Record contains only plain fields; Marshal cannot fail.
		return ""
	}
	return prefix + base64.URLEncoding.EncodeToString(payload) + suffix
}

// Extract locates a marker inside message content and decodes it. Malformed
// or absent markers return ok=false rather than an error: a broken marker
// means "no context update", never a failed turn.
func Extract(content string) (Record, bool) {
	m := markerPattern.FindStringSubmatch(content)
	if m == nil {
		return Record{}, false
	}
	b64 := m[1]
	if pad := len(b64) % 4; pad != 0 {
		b64 += strings.Repeat("=", 4-pad)
	}
	payload, err := base64.URLEncoding.DecodeString(b64)
	if err != nil {
		return Record{}, false
	}
	var r Record
	if err := json.Unmarshal(payload, &r); err != nil {
		return Record{}, false
	}
	return r, true
}

// Strip removes any marker from message content, returning the visible text.
func Strip(content string) string {
	return strings.TrimSpace(markerPattern.ReplaceAllString(content, ""))
}
