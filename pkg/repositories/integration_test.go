package repositories

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpibot-inc/kpibot-engine/pkg/testhelpers"
)

// seedHeadcount creates a throwaway KPI table with a few rows. Each call
// uses a distinct table name so tests stay independent of each other.
func seedHeadcount(t *testing.T, db *testhelpers.TestDB, name string) {
	t.Helper()
	ctx := context.Background()

	_, err := db.Pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE %s (
			st_Month  TEXT NOT NULL,
			OrgName   TEXT NOT NULL,
			ProductLine TEXT NOT NULL,
			HeadCount INT NOT NULL
		)`, name))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = db.Pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+name)
	})

	rows := [][]any{
		{"202504", "Tokyo", "CT", 10},
		{"202504", "Osaka", "3DI", 4},
		{"202505", "Tokyo", "CT", 12},
		{"202505", "Osaka", "CT", 8},
	}
	for _, r := range rows {
		_, err := db.Pool.Exec(ctx, fmt.Sprintf(
			"INSERT INTO %s (st_Month, OrgName, ProductLine, HeadCount) VALUES ($1, $2, $3, $4)", name),
			r...)
		require.NoError(t, err)
	}
}

func TestDimensionRepository_FindExactMatch(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	seedHeadcount(t, db, "dim_match_headcount")
	repo := NewDimensionRepository(db.Pool)
	ctx := context.Background()

	match, found, err := repo.FindExactMatch(ctx, "dim_match_headcount", "orgname", "tokyo", nil)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Tokyo", match, "the stored spelling comes back")

	_, found, err = repo.FindExactMatch(ctx, "dim_match_headcount", "orgname", "nagoya", nil)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDimensionRepository_FindExactMatchWithFilters(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	seedHeadcount(t, db, "dim_filter_headcount")
	repo := NewDimensionRepository(db.Pool)
	ctx := context.Background()

	// Osaka only has a 3DI row in 202504.
	_, found, err := repo.FindExactMatch(ctx, "dim_filter_headcount", "orgname", "osaka",
		map[string][]string{"productline": {"3DI"}, "st_month": {"202505"}})
	require.NoError(t, err)
	assert.False(t, found)

	match, found, err := repo.FindExactMatch(ctx, "dim_filter_headcount", "orgname", "osaka",
		map[string][]string{"productline": {"CT", "3DI"}})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Osaka", match)
}

func TestDimensionRepository_RejectsBadIdentifiers(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	repo := NewDimensionRepository(db.Pool)
	ctx := context.Background()

	_, _, err := repo.FindExactMatch(ctx, "t; DROP TABLE x", "col", "v", nil)
	assert.Error(t, err)

	_, err = repo.UniqueValues(ctx, "t", "col; --", nil)
	assert.Error(t, err)
}

func TestDimensionRepository_UniqueValues(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	seedHeadcount(t, db, "dim_unique_headcount")
	repo := NewDimensionRepository(db.Pool)

	values, err := repo.UniqueValues(context.Background(), "dim_unique_headcount", "orgname", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Osaka", "Tokyo"}, values)

	values, err = repo.UniqueValues(context.Background(), "dim_unique_headcount", "orgname",
		map[string][]string{"productline": {"3DI"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Osaka"}, values)
}

func TestQueryRepository_Run(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	seedHeadcount(t, db, "query_run_headcount")
	repo := NewQueryRepository(db.Pool)

	result, err := repo.Run(context.Background(),
		"SELECT st_Month AS month, SUM(HeadCount) AS value FROM query_run_headcount WHERE OrgName = $1 GROUP BY st_Month ORDER BY st_Month ASC",
		[]any{"Tokyo"})
	require.NoError(t, err)

	assert.Equal(t, []string{"month", "value"}, result.Columns)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "202504", result.Rows[0]["month"])
	assert.EqualValues(t, 10, result.Rows[0]["value"])
	assert.Equal(t, "202505", result.Rows[1]["month"])
	assert.EqualValues(t, 12, result.Rows[1]["value"])
}

func TestUnsupportedKPIRepository_Record(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	repo := NewUnsupportedKPIRepository(db.Pool)
	ctx := context.Background()

	err := repo.Record(ctx, "show me revenue", "202505", []string{"product:CT"})
	require.NoError(t, err)

	var query, timeRange string
	var scope []string
	err = db.Pool.QueryRow(ctx,
		"SELECT query, time_range, scope FROM unsupported_kpi_requests WHERE query = $1",
		"show me revenue").Scan(&query, &timeRange, &scope)
	require.NoError(t, err)
	assert.Equal(t, "202505", timeRange)
	assert.Equal(t, []string{"product:CT"}, scope)
}
