package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeDimensions satisfies repositories.DimensionRepository without a
// database.
type fakeDimensions struct {
	values []string
	err    error

	lastTable  string
	lastColumn string
}

func (f *fakeDimensions) FindExactMatch(_ context.Context, table, column, value string, _ map[string][]string) (string, bool, error) {
	return "", false, nil
}

func (f *fakeDimensions) UniqueValues(_ context.Context, table, column string, _ map[string][]string) ([]string, error) {
	f.lastTable = table
	f.lastColumn = column
	return f.values, f.err
}

func getDimension(t *testing.T, h *DimensionHandler, query string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/config/dimension"+query, nil)
	w := httptest.NewRecorder()
	h.Values(w, req)
	return w
}

func TestDimensionValues(t *testing.T) {
	stack := newTestStack(t)
	fake := &fakeDimensions{values: []string{"Osaka", "Tokyo"}}
	h := NewDimensionHandler(stack.catalog, fake, zap.NewNop())

	w := getDimension(t, h, "?kpi=fe_count&category=organization")
	require.Equal(t, http.StatusOK, w.Code)

	var resp DimensionValuesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "fe_count", resp.KPI)
	assert.Equal(t, "organization", resp.Category)
	assert.Equal(t, []string{"Osaka", "Tokyo"}, resp.Values)
	assert.Equal(t, 2, resp.Total)

	assert.Equal(t, "fe_headcount", fake.lastTable)
	assert.Equal(t, "OrgName", fake.lastColumn)
}

func TestDimensionValues_Errors(t *testing.T) {
	stack := newTestStack(t)

	tests := []struct {
		name     string
		query    string
		repoErr  error
		wantCode int
	}{
		{"missing params", "?kpi=fe_count", nil, http.StatusBadRequest},
		{"unknown kpi", "?kpi=revenue&category=organization", nil, http.StatusNotFound},
		{"unknown category", "?kpi=fe_count&category=region", nil, http.StatusNotFound},
		{"repository failure", "?kpi=fe_count&category=product", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewDimensionHandler(stack.catalog, &fakeDimensions{err: tt.repoErr}, zap.NewNop())
			w := getDimension(t, h, tt.query)
			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}
