package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kpibot-inc/kpibot-engine/pkg/config"
	"github.com/kpibot-inc/kpibot-engine/pkg/llm"
	"github.com/kpibot-inc/kpibot-engine/pkg/models"
)

func testCatalog(t *testing.T) *config.KPICatalog {
	t.Helper()
	catalog, err := config.ParseKPICatalog([]byte(`
kpi_definitions:
  fe_count:
    description: "Field engineer headcount by month"
    label: "FE Headcount"
    table_name: "fe_headcount"
    time_column: "st_Month"
    scope_columns:
      product: "ProductLine"
      organization: "OrgName"
    allowed_scopes: ["product", "organization"]
    sql_template: "SELECT SUM(HeadCount) AS value FROM fe_headcount WHERE 1=1 {conditions}"
  machine_count:
    description: "Installed machine count by month"
    label: "Machine Count"
    table_name: "machine_inventory"
    time_column: "st_Month"
    scope_columns:
      product: "ProductLine"
      tools: "SerialNumber"
    allowed_scopes: ["product"]
    sql_template: "SELECT COUNT(*) AS value FROM machine_inventory WHERE 1=1 {conditions}"
`))
	require.NoError(t, err)
	return catalog
}

func testEnricher(t *testing.T, client llm.Client) *Enricher {
	t.Helper()
	return NewEnricher(client, testCatalog(t), config.EnrichmentConfig{
		Enabled:        true,
		TimeoutSeconds: 5,
	}, zap.NewNop())
}

func TestEnricher_FillsEmptySlots(t *testing.T) {
	mock := llm.NewMockClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return `{"kpi": "machine_count", "time_range": "202505", "scope": ["product:CT"], "finished_selection": true}`, nil
	}
	e := testEnricher(t, mock)

	analysis := &models.Analysis{Scope: models.NewScopeSet()}
	e.Enrich(context.Background(), analysis, "how many tools in may", testNow)

	assert.Equal(t, "machine_count", analysis.KPI)
	assert.Equal(t, "202505", analysis.TimeRange)
	assert.Equal(t, []string{"product:CT"}, analysis.Scope.Strings())
	assert.True(t, analysis.FinishedSelection)
}

func TestEnricher_NeverOverwritesResolvedSlots(t *testing.T) {
	mock := llm.NewMockClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return `{"kpi": "machine_count", "time_range": "202401", "scope": ["organization:Osaka"], "finished_selection": false}`, nil
	}
	e := testEnricher(t, mock)

	analysis := &models.Analysis{
		KPI:       "fe_count",
		TimeRange: "202505",
		Scope:     models.NewScopeSet("product:CT"),
	}
	e.Enrich(context.Background(), analysis, "whatever", testNow)

	// Deterministic results stand; only the scope token is added.
	assert.Equal(t, "fe_count", analysis.KPI)
	assert.Equal(t, "202505", analysis.TimeRange)
	assert.Equal(t, []string{"product:CT", "organization:Osaka"}, analysis.Scope.Strings())
}

func TestEnricher_DiscardsUnparseableResponse(t *testing.T) {
	mock := llm.NewMockClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return "I think the user wants headcount data.", nil
	}
	e := testEnricher(t, mock)

	analysis := &models.Analysis{Scope: models.NewScopeSet()}
	e.Enrich(context.Background(), analysis, "hi", testNow)

	assert.Empty(t, analysis.KPI)
	assert.Empty(t, analysis.TimeRange)
	assert.Zero(t, analysis.Scope.Len())
}

func TestEnricher_RejectsNonCanonicalTime(t *testing.T) {
	mock := llm.NewMockClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return `{"time_range": "next spring"}`, nil
	}
	e := testEnricher(t, mock)

	analysis := &models.Analysis{Scope: models.NewScopeSet()}
	e.Enrich(context.Background(), analysis, "hi", testNow)

	assert.Empty(t, analysis.TimeRange)
}

func TestEnricher_ResolvesFuzzyKPIName(t *testing.T) {
	mock := llm.NewMockClient()
	mock.GenerateResponseFunc = func(ctx context.Context, prompt, system string, temp float64) (string, error) {
		return `{"kpi": "machine"}`, nil
	}
	e := testEnricher(t, mock)

	analysis := &models.Analysis{Scope: models.NewScopeSet()}
	e.Enrich(context.Background(), analysis, "hi", testNow)

	assert.Equal(t, "machine_count", analysis.KPI)
}

func TestEnricher_DisabledIsNoop(t *testing.T) {
	mock := llm.NewMockClient()
	e := NewEnricher(mock, testCatalog(t), config.EnrichmentConfig{Enabled: false}, zap.NewNop())

	analysis := &models.Analysis{Scope: models.NewScopeSet()}
	e.Enrich(context.Background(), analysis, "hi", testNow)

	assert.Zero(t, mock.GenerateResponseCalls)
}

func TestEnricher_PromptCarriesCatalogAndState(t *testing.T) {
	mock := llm.NewMockClient()
	e := testEnricher(t, mock)

	analysis := &models.Analysis{KPI: "fe_count", Scope: models.NewScopeSet("product:CT")}
	e.Enrich(context.Background(), analysis, "numbers please", testNow)

	require.Len(t, mock.Prompts, 1)
	prompt := mock.Prompts[0]
	assert.Contains(t, prompt, "fe_count")
	assert.Contains(t, prompt, "machine_count")
	assert.Contains(t, prompt, "product:CT")
	assert.Contains(t, prompt, "2025-06-15")
	assert.Contains(t, prompt, "numbers please")
}
