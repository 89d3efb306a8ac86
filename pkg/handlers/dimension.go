package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/kpibot-inc/kpibot-engine/pkg/apperrors"
	"github.com/kpibot-inc/kpibot-engine/pkg/config"
	"github.com/kpibot-inc/kpibot-engine/pkg/repositories"
)

// DimensionValuesResponse lists the selectable values of one scope
// dimension.
type DimensionValuesResponse struct {
	KPI      string   `json:"kpi"`
	Category string   `json:"category"`
	Values   []string `json:"values"`
	Total    int      `json:"total"`
}

// DimensionHandler exposes the scope dimensions of the KPI catalog so
// clients can offer pickers instead of free text.
type DimensionHandler struct {
	catalog    *config.KPICatalog
	dimensions repositories.DimensionRepository
	logger     *zap.Logger
}

// NewDimensionHandler creates a new DimensionHandler.
func NewDimensionHandler(catalog *config.KPICatalog, dimensions repositories.DimensionRepository, logger *zap.Logger) *DimensionHandler {
	return &DimensionHandler{catalog: catalog, dimensions: dimensions, logger: logger}
}

// RegisterRoutes registers the dimension handler's routes on the given mux.
func (h *DimensionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /config/dimension", h.Values)
}

// Values handles GET /config/dimension?kpi=<key>&category=<category>.
func (h *DimensionHandler) Values(w http.ResponseWriter, r *http.Request) {
	kpi := r.URL.Query().Get("kpi")
	category := r.URL.Query().Get("category")
	if kpi == "" || category == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "kpi and category query parameters are required")
		return
	}

	def, err := h.catalog.Lookup(kpi)
	if err != nil {
		_ = ErrorResponse(w, http.StatusNotFound, "unknown_kpi", apperrors.ErrUnknownKPI.Error())
		return
	}
	column, ok := def.ScopeColumn(category)
	if !ok {
		_ = ErrorResponse(w, http.StatusNotFound, "unknown_category", apperrors.ErrUnknownDimension.Error())
		return
	}

	values, err := h.dimensions.UniqueValues(r.Context(), def.TableName, column, nil)
	if err != nil {
		h.logger.Error("Failed to list dimension values",
			zap.String("kpi", def.Key),
			zap.String("category", category),
			zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "query_failed", "failed to list dimension values")
		return
	}

	resp := DimensionValuesResponse{
		KPI:      def.Key,
		Category: category,
		Values:   values,
		Total:    len(values),
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode dimension response", zap.Error(err))
	}
}
