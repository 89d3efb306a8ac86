package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kpibot-inc/kpibot-engine/pkg/config"
)

// ModelInfo is one entry of the OpenAI-compatible model listing. The bot
// advertises exactly one model: itself.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
	Name    string `json:"name,omitempty"`
}

// ModelListResponse is the /v1/models payload.
type ModelListResponse struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

// ModelsHandler serves the bot identity on the models endpoint so
// OpenAI-compatible chat frontends can discover it.
type ModelsHandler struct {
	cfg     *config.Config
	created int64
	logger  *zap.Logger
}

// NewModelsHandler creates a new ModelsHandler.
func NewModelsHandler(cfg *config.Config, logger *zap.Logger) *ModelsHandler {
	return &ModelsHandler{cfg: cfg, created: time.Now().Unix(), logger: logger}
}

// RegisterRoutes registers the models handler's routes on the given mux.
func (h *ModelsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/models", h.List)
}

// List handles GET /v1/models.
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	resp := ModelListResponse{
		Object: "list",
		Data: []ModelInfo{{
			ID:      h.cfg.Bot.ID,
			Object:  "model",
			Created: h.created,
			OwnedBy: "kpibot",
			Name:    h.cfg.Bot.Name,
		}},
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode model list", zap.Error(err))
	}
}
