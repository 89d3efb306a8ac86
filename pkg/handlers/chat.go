package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/kpibot-inc/kpibot-engine/pkg/config"
	"github.com/kpibot-inc/kpibot-engine/pkg/marker"
	"github.com/kpibot-inc/kpibot-engine/pkg/models"
	"github.com/kpibot-inc/kpibot-engine/pkg/services"
)

// ============================================================================
// Request/Response Types (OpenAI chat completions wire shape)
// ============================================================================

// ChatCompletionRequest is the accepted subset of the completions request.
type ChatCompletionRequest struct {
	Model    string               `json:"model"`
	Messages []models.ChatMessage `json:"messages"`
	Stream   bool                 `json:"stream,omitempty"`
}

// ChatCompletionResponse mirrors the non-streaming completions response.
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   ChatCompletionUsage    `json:"usage"`
}

type ChatCompletionChoice struct {
	Index        int                `json:"index"`
	Message      models.ChatMessage `json:"message"`
	FinishReason string             `json:"finish_reason"`
}

type ChatCompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ============================================================================
// Handler
// ============================================================================

// ChatHandler serves the OpenAI-compatible chat surface. Every request
// carries the full conversation; the handler replays it, answers the latest
// user turn, and embeds the updated context marker in the reply so the next
// request can replay deterministically.
type ChatHandler struct {
	cfg     *config.Config
	catalog *config.KPICatalog
	merger  *services.ContextMerger
	queries *services.QueryService
	logger  *zap.Logger

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(
	cfg *config.Config,
	catalog *config.KPICatalog,
	merger *services.ContextMerger,
	queries *services.QueryService,
	logger *zap.Logger,
) *ChatHandler {
	return &ChatHandler{
		cfg:     cfg,
		catalog: catalog,
		merger:  merger,
		queries: queries,
		logger:  logger,
		now:     time.Now,
	}
}

// RegisterRoutes registers the chat handler's routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/chat/completions", h.Completions)
}

// Completions handles POST /v1/chat/completions.
func (h *ChatHandler) Completions(w http.ResponseWriter, r *http.Request) {
	var req ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if len(req.Messages) == 0 {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "messages must not be empty")
		return
	}

	now := h.now()
	carried, analysis := h.merger.Replay(r.Context(), req.Messages, now)
	if analysis == nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "no user message in conversation")
		return
	}

	content := h.respond(r, carried, analysis)

	resp := ChatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: now.Unix(),
		Model:   h.cfg.Bot.ID,
		Choices: []ChatCompletionChoice{{
			Index:        0,
			Message:      models.ChatMessage{Role: models.RoleAssistant, Content: content},
			FinishReason: "stop",
		}},
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode chat completion", zap.Error(err))
	}
}

// respond produces the visible reply plus the embedded context marker.
func (h *ChatHandler) respond(r *http.Request, carried *models.ResolvedContext, analysis *models.Analysis) string {
	rec := marker.Record{
		KPI:                    analysis.KPI,
		TimeRange:              analysis.TimeRange,
		Scope:                  analysis.Scope.Strings(),
		MissingParams:          analysis.Missing,
		MissingScopeCategories: analysis.MissingScopeCategories,
		ScopePrompted:          carried.ScopePrompted,
		UnsupportedKPI:         analysis.UnsupportedKPI,
		UnsupportedKPINotified: analysis.UnsupportedKPINotified,
	}

	var visible string
	switch {
	case analysis.ResponseMessage != "":
		visible = analysis.ResponseMessage
	case !analysis.Ready():
		visible = h.clarification(analysis)
	default:
		visible, rec.SQL = h.answer(r, analysis)
	}

	return visible + "\n\n" + marker.Encode(rec)
}

// answer executes the resolved query and renders the markdown summary. The
// generated SQL is returned for the marker so chart and download requests
// can reuse it.
func (h *ChatHandler) answer(r *http.Request, analysis *models.Analysis) (visible, generatedSQL string) {
	def, ok := h.catalog.Get(analysis.KPI)
	if !ok {
		return services.UnsupportedKPIMessage, ""
	}

	result, q, err := h.queries.Execute(r.Context(), def, analysis.TimeRange, analysis.Scope)
	if err != nil {
		h.logger.Error("Failed to execute KPI query",
			zap.String("kpi", analysis.KPI), zap.Error(err))
		return "Something went wrong while running the query. Please try again.", ""
	}

	summary := services.Summarize(def, result)
	header := h.filterSummary(def, analysis)
	return header + "\n\n" + summary, q.SQL
}

// filterSummary restates the applied filters so the user can see what the
// numbers cover.
func (h *ChatHandler) filterSummary(def *models.KPIDefinition, analysis *models.Analysis) string {
	label := def.Label
	if label == "" {
		label = def.Key
	}

	parts := []string{"Period: " + describeTimeRange(analysis.TimeRange)}
	for _, cat := range analysis.Scope.Categories() {
		vals := analysis.Scope.Values(cat)
		name := cat
		if len(vals) > 1 {
			name = inflection.Plural(cat)
		}
		parts = append(parts, fmt.Sprintf("%s: %s", capitalize(name), strings.Join(vals, ", ")))
	}

	return fmt.Sprintf("Here is **%s** (%s).", label, strings.Join(parts, "; "))
}

func describeTimeRange(timeRange string) string {
	switch timeRange {
	case "all":
		return "all time"
	case "":
		return "latest month"
	default:
		return timeRange
	}
}

// clarification phrases the follow-up question for missing slots. A
// proactive scope gap gets a targeted question naming the uncovered
// categories rather than the generic scope prompt.
func (h *ChatHandler) clarification(analysis *models.Analysis) string {
	var lines []string

	if analysis.KPI == "" {
		lines = append(lines, "Which KPI would you like to see? I can help with: "+
			strings.Join(h.kpiMenu(), ", ")+".")
	}

	for _, slot := range analysis.Missing {
		switch slot {
		case models.SlotTimeRange:
			lines = append(lines, `Which period should I use? For example "2025-05", "FY26 Q1", "last year", or "all".`)
		case models.SlotScope:
			if analysis.ProactiveScope {
				lines = append(lines, fmt.Sprintf(
					`You can also narrow it down by %s. Say "none" if no further filter is needed.`,
					joinCategories(analysis.MissingScopeCategories)))
				continue
			}
			lines = append(lines, h.scopeQuestion(analysis))
		}
	}

	if len(lines) == 0 {
		lines = append(lines, "Could you tell me a bit more about what you want to see?")
	}
	return strings.Join(lines, "\n\n")
}

func (h *ChatHandler) scopeQuestion(analysis *models.Analysis) string {
	def, ok := h.catalog.Get(analysis.KPI)
	if !ok || len(def.AllowedScopes) == 0 {
		return `Would you like to filter the result? Say "none" to see the overall number.`
	}
	return fmt.Sprintf(
		`Would you like to filter by %s? Say "none" to see the overall number.`,
		joinCategories(def.AllowedScopes))
}

func (h *ChatHandler) kpiMenu() []string {
	keys := h.catalog.Keys()
	menu := make([]string, 0, len(keys))
	for _, key := range keys {
		if def, ok := h.catalog.Get(key); ok && def.Label != "" {
			menu = append(menu, def.Label)
			continue
		}
		menu = append(menu, key)
	}
	return menu
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func joinCategories(categories []string) string {
	plural := make([]string, 0, len(categories))
	for _, c := range categories {
		plural = append(plural, inflection.Plural(c))
	}
	switch len(plural) {
	case 0:
		return "a filter"
	case 1:
		return plural[0]
	default:
		return strings.Join(plural[:len(plural)-1], ", ") + " or " + plural[len(plural)-1]
	}
}
