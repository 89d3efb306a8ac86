package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKpiResolver_Resolve(t *testing.T) {
	r := NewKpiResolver(nil)

	tests := []struct {
		name       string
		text       string
		currentKPI string
		wantKey    string
		wantReset  bool
	}{
		{"simple keyword", "show me fe headcount", "", "fe_count", true},
		{"case insensitive", "FE Headcount Report please", "", "fe_count", true},
		{"specific phrase beats keyword", "su hour per tool for FY26", "", "su_hour_per_tool", true},
		{"machine keyword", "how many machines do we have", "", "machine_count", true},
		{"broad headcount fallback", "staff numbers for 2025", "", "headcount", true},
		{"same kpi carries", "fe headcount again", "fe_count", "fe_count", false},
		{"different kpi resets", "what about os headcount", "fe_count", "os_count", true},
		{"no match carries current", "for 2025-05 please", "fe_count", "fe_count", false},
		{"no match no current", "for 2025-05 please", "", "", false},
		{"short key needs word boundary", "compare with osaka", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, reset := r.Resolve(tt.text, tt.currentKPI)
			assert.Equal(t, tt.wantKey, key)
			assert.Equal(t, tt.wantReset, reset)
		})
	}
}

func TestKpiResolver_PriorityOrder(t *testing.T) {
	// A custom table shows that the first matching entry wins even when a
	// later entry would match a longer phrase.
	r := NewKpiResolver([]KpiRule{
		{"count", "generic_count"},
		{"chamber count", "chamber_count"},
	})

	key, _ := r.Resolve("chamber count for FY26", "")
	assert.Equal(t, "generic_count", key)
}
