package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kpibot-inc/kpibot-engine/pkg/apperrors"
	"github.com/kpibot-inc/kpibot-engine/pkg/config"
	"github.com/kpibot-inc/kpibot-engine/pkg/models"
	"github.com/kpibot-inc/kpibot-engine/pkg/services"
)

// ChartRequest carries the conversation whose resolved query should be
// charted.
type ChartRequest struct {
	Messages []models.ChatMessage `json:"messages"`
}

// ChartResponse is a minimal series payload for a month/value bar or line
// chart.
type ChartResponse struct {
	Title  string    `json:"title"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// ChartHandler renders the resolved conversation as chart data.
type ChartHandler struct {
	catalog *config.KPICatalog
	merger  *services.ContextMerger
	queries *services.QueryService
	logger  *zap.Logger

	now func() time.Time
}

// NewChartHandler creates a new ChartHandler.
func NewChartHandler(catalog *config.KPICatalog, merger *services.ContextMerger, queries *services.QueryService, logger *zap.Logger) *ChartHandler {
	return &ChartHandler{
		catalog: catalog,
		merger:  merger,
		queries: queries,
		logger:  logger,
		now:     time.Now,
	}
}

// RegisterRoutes registers the chart handler's routes on the given mux.
func (h *ChartHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat/chart", h.Chart)
}

// Chart handles POST /chat/chart.
func (h *ChartHandler) Chart(w http.ResponseWriter, r *http.Request) {
	var req ChartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	_, analysis := h.merger.Replay(r.Context(), req.Messages, h.now())
	if analysis == nil || !analysis.Ready() {
		_ = ErrorResponse(w, http.StatusConflict, "slots_unresolved", apperrors.ErrSlotsMissing.Error())
		return
	}

	def, ok := h.catalog.Get(analysis.KPI)
	if !ok {
		_ = ErrorResponse(w, http.StatusConflict, "unsupported_kpi", "the requested KPI is not supported")
		return
	}

	result, _, err := h.queries.Execute(r.Context(), def, analysis.TimeRange, analysis.Scope)
	if err != nil {
		h.logger.Error("Failed to execute chart query", zap.String("kpi", def.Key), zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "query_failed", "query execution failed")
		return
	}

	resp := ChartResponse{
		Title:  chartTitle(def),
		Labels: make([]string, 0, len(result.Rows)),
		Values: make([]float64, 0, len(result.Rows)),
	}
	for _, row := range result.Rows {
		resp.Labels = append(resp.Labels, chartLabel(row["month"]))
		resp.Values = append(resp.Values, chartValue(row["value"]))
	}

	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode chart response", zap.Error(err))
	}
}

func chartTitle(def *models.KPIDefinition) string {
	if def.Label != "" {
		return def.Label
	}
	return def.Key
}

func chartLabel(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	default:
		return ""
	}
}

func chartValue(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case int:
		return float64(val)
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	default:
		return 0
	}
}
