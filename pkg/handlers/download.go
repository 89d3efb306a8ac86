package handlers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kpibot-inc/kpibot-engine/pkg/apperrors"
	"github.com/kpibot-inc/kpibot-engine/pkg/config"
	"github.com/kpibot-inc/kpibot-engine/pkg/models"
	"github.com/kpibot-inc/kpibot-engine/pkg/services"
)

// DownloadRequest carries the conversation whose resolved query should be
// exported row by row.
type DownloadRequest struct {
	Messages []models.ChatMessage `json:"messages"`
}

// DownloadHandler exports the resolved conversation's underlying rows as a
// CSV attachment.
type DownloadHandler struct {
	catalog *config.KPICatalog
	merger  *services.ContextMerger
	queries *services.QueryService
	logger  *zap.Logger

	now func() time.Time
}

// NewDownloadHandler creates a new DownloadHandler.
func NewDownloadHandler(catalog *config.KPICatalog, merger *services.ContextMerger, queries *services.QueryService, logger *zap.Logger) *DownloadHandler {
	return &DownloadHandler{
		catalog: catalog,
		merger:  merger,
		queries: queries,
		logger:  logger,
		now:     time.Now,
	}
}

// RegisterRoutes registers the download handler's routes on the given mux.
func (h *DownloadHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat/download", h.Download)
}

// Download handles POST /chat/download.
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
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

	result, _, err := h.queries.ExecuteDetail(r.Context(), def, analysis.TimeRange, analysis.Scope)
	if err != nil {
		h.logger.Error("Failed to execute detail query", zap.String("kpi", def.Key), zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "query_failed", "query execution failed")
		return
	}

	filename := fmt.Sprintf("%s_%s.csv", def.Key, h.now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	writer := csv.NewWriter(w)
	header := make([]string, 0, len(result.Columns))
	for _, col := range result.Columns {
		if label, ok := def.ColumnLabels[col]; ok {
			header = append(header, label)
			continue
		}
		header = append(header, col)
	}
	if err := writer.Write(header); err != nil {
		h.logger.Error("Failed to write CSV header", zap.Error(err))
		return
	}

	record := make([]string, len(result.Columns))
	for _, row := range result.Rows {
		for i, col := range result.Columns {
			record[i] = csvCell(row[col])
		}
		if err := writer.Write(record); err != nil {
			h.logger.Error("Failed to write CSV row", zap.Error(err))
			return
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		h.logger.Error("Failed to flush CSV", zap.Error(err))
	}
}

func csvCell(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
