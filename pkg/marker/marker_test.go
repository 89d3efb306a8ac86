package marker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarker_RoundTrip(t *testing.T) {
	rec := Record{
		KPI:                    "fe_count",
		TimeRange:              "202504-202603",
		Scope:                  []string{"product:CT", "organization:Tokyo"},
		MissingParams:          []string{"scope"},
		MissingScopeCategories: []string{"organization"},
		ScopePrompted:          true,
		UnsupportedKPINotified: true,
		SQL:                    "SELECT st_Month AS month, SUM(HeadCount) AS value FROM fe_headcount",
	}

	encoded := Encode(rec)
	require.True(t, strings.HasPrefix(encoded, "<!-- KPIBOT_META: "))
	require.True(t, strings.HasSuffix(encoded, " -->"))

	decoded, ok := Extract("Here is your data.\n\n" + encoded)
	require.True(t, ok)
	assert.Equal(t, rec, decoded)
}

func TestMarker_EmptyRecordRoundTrip(t *testing.T) {
	decoded, ok := Extract(Encode(Record{}))
	require.True(t, ok)
	assert.Equal(t, Record{}, decoded)
}

func TestMarker_ExtractMissing(t *testing.T) {
	_, ok := Extract("a plain assistant message with no marker")
	assert.False(t, ok)
}

func TestMarker_ExtractMalformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not base64", "<!-- KPIBOT_META: %%%% -->"},
		{"not json", "<!-- KPIBOT_META: bm90LWpzb24 -->"},
		{"wrong token", "<!-- OTHER_META: eyJrcGkiOiJ4In0 -->"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Extract(tt.content)
			assert.False(t, ok)
		})
	}
}

func TestMarker_ExtractToleratesMissingPadding(t *testing.T) {
	encoded := Encode(Record{KPI: "fe_count"})
	stripped := strings.ReplaceAll(encoded, "=", "")

	rec, ok := Extract(stripped)
	require.True(t, ok)
	assert.Equal(t, "fe_count", rec.KPI)
}

func TestMarker_Strip(t *testing.T) {
	content := "Here is your data.\n\n" + Encode(Record{KPI: "fe_count"})
	assert.Equal(t, "Here is your data.", Strip(content))

	assert.Equal(t, "no marker here", Strip("no marker here"))
}
