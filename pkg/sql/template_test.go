package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpibot-inc/kpibot-engine/pkg/models"
)

func templateDef() *models.KPIDefinition {
	return &models.KPIDefinition{
		Key:        "fe_count",
		Label:      "FE Headcount",
		TableName:  "fe_headcount",
		TimeColumn: "st_Month",
		ScopeColumns: map[string]string{
			"product":      "ProductLine",
			"organization": "OrgName",
		},
		SQLTemplate: "SELECT SUM(HeadCount) AS value FROM fe_headcount WHERE 1=1 {conditions}",
	}
}

func TestSplitSelectFrom(t *testing.T) {
	tests := []struct {
		name       string
		template   string
		wantSelect string
		wantFrom   string
		wantErr    bool
	}{
		{
			"simple",
			"SELECT SUM(x) AS value FROM t",
			"SUM(x) AS value", "t", false,
		},
		{
			"lowercase keywords",
			"select a, b from t where 1=1",
			"a, b", "t where 1=1", false,
		},
		{
			"multiline",
			"SELECT\n  SUM(x) AS value\nFROM t\nWHERE 1=1 {conditions}",
			"SUM(x) AS value", "t\nWHERE 1=1 {conditions}", false,
		},
		{"no from", "SELECT 1", "", "", true},
		{"no select", "DELETE FROM t", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, from, err := SplitSelectFrom(tt.template)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTemplate)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSelect, sel)
			assert.Equal(t, tt.wantFrom, from)
		})
	}
}

func TestSplitSelectExpressions(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"single", "SUM(x) AS value", []string{"SUM(x) AS value"}},
		{"two plain", "a, b", []string{"a", "b"}},
		{
			"comma inside parens",
			"COALESCE(a, b) AS v, c",
			[]string{"COALESCE(a, b) AS v", "c"},
		},
		{
			"comma inside quotes",
			"'x,y' AS label, c",
			[]string{"'x,y' AS label", "c"},
		},
		{
			"nested parens",
			"ROUND(SUM(a) / NULLIF(COUNT(b), 0), 2) AS ratio, m",
			[]string{"ROUND(SUM(a) / NULLIF(COUNT(b), 0), 2) AS ratio", "m"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitSelectExpressions(tt.input))
		})
	}
}

func TestStripTrailingAlias(t *testing.T) {
	assert.Equal(t, "SUM(x)", StripTrailingAlias("SUM(x) AS value"))
	assert.Equal(t, "SUM(x)", StripTrailingAlias("SUM(x) as `value`"))
	assert.Equal(t, "SUM(x)", StripTrailingAlias("SUM(x)"))
	// AS inside a function call is untouched.
	assert.Equal(t, "CAST(x AS INT)", StripTrailingAlias("CAST(x AS INT)"))
}

func TestBuildQuery_Shape(t *testing.T) {
	scope := models.NewScopeSet("product:CT")
	q, err := BuildQuery(templateDef(), "202505", scope)
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT st_Month AS month, SUM(HeadCount) AS value\n"+
			"FROM fe_headcount WHERE 1=1 AND st_Month = $1 AND ProductLine = $2\n"+
			"GROUP BY st_Month\nORDER BY st_Month ASC",
		q.SQL)
	assert.Equal(t, []any{"202505", "CT"}, q.Args)
	assert.Empty(t, q.DroppedScope)
}

func TestBuildQuery_MonthColumnOverride(t *testing.T) {
	def := templateDef()
	def.TimeColumn = "st_FY"
	def.MonthColumn = "st_Month"

	q, err := BuildQuery(def, "", nil)
	require.NoError(t, err)

	assert.Contains(t, q.SQL, "SELECT st_Month AS month")
	assert.Contains(t, q.SQL, "st_Month = (SELECT MAX(st_Month) FROM fe_headcount)")
	assert.Contains(t, q.SQL, "GROUP BY st_Month")
}

func TestBuildQuery_InvalidTemplate(t *testing.T) {
	def := templateDef()
	def.SQLTemplate = "just some text"

	_, err := BuildQuery(def, "202505", nil)
	assert.ErrorIs(t, err, ErrInvalidTemplate)
}

func TestBuildQuery_InvalidTimeColumn(t *testing.T) {
	def := templateDef()
	def.TimeColumn = "st_Month; DROP TABLE x"

	_, err := BuildQuery(def, "202505", nil)
	assert.Error(t, err)
}

func TestBuildDetailQuery(t *testing.T) {
	scope := models.NewScopeSet("product:CT", "product:3DI")
	q, err := BuildDetailQuery(templateDef(), "202504-202506", scope)
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT * FROM fe_headcount WHERE 1=1 AND st_Month >= $1 AND st_Month <= $2 AND ProductLine IN ($3, $4)",
		q.SQL)
	assert.Equal(t, []any{"202504", "202506", "CT", "3DI"}, q.Args)
}

func TestBuildDetailQuery_NoPlaceholder(t *testing.T) {
	def := templateDef()
	def.SQLTemplate = "SELECT SUM(HeadCount) AS value FROM fe_headcount"

	q, err := BuildDetailQuery(def, "all", nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM fe_headcount", q.SQL)
	assert.Empty(t, q.Args)
}
