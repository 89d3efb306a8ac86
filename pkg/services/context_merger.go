package services

import (
	"context"
	"time"

	"github.com/kpibot-inc/kpibot-engine/pkg/marker"
	"github.com/kpibot-inc/kpibot-engine/pkg/models"
)

// ContextMerger rebuilds the conversation context by replaying the message
// history. The server keeps no session state: every request carries the
// full history, and the fold below is the only source of truth. The same
// message sequence always produces the same context.
type ContextMerger struct {
	intent *IntentService
}

// NewContextMerger creates a merger over the given analysis pipeline.
func NewContextMerger(intent *IntentService) *ContextMerger {
	return &ContextMerger{intent: intent}
}

// Replay folds the message sequence into a context and returns it together
// with the analysis of the final user message, which drives the reply.
// last is nil when the sequence contains no user message.
func (m *ContextMerger) Replay(ctx context.Context, messages []models.ChatMessage, now time.Time) (carried *models.ResolvedContext, last *models.Analysis) {
	carried = models.NewResolvedContext()

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleAssistant:
			if rec, ok := marker.Extract(msg.Content); ok {
				mergeRecord(carried, rec)
			}
		case models.RoleUser:
			analysis := m.intent.Analyze(ctx, msg.Content, carried, now)
			prompted := carried.ScopePrompted || analysis.AsksScope()
			carried = analysis.Context(prompted)
			last = analysis
		}
	}

	return carried, last
}

// mergeRecord folds a decoded marker into the running context. Set fields
// win over the accumulator, scope tokens accumulate, and one-way flags stay
// up once raised.
func mergeRecord(c *models.ResolvedContext, rec marker.Record) {
	if rec.KPI != "" {
		c.KPI = rec.KPI
	}
	if rec.TimeRange != "" {
		c.TimeRange = rec.TimeRange
	}
	for _, raw := range rec.Scope {
		if tok, ok := models.ParseScopeToken(raw); ok {
			c.Scope.Add(tok)
		}
	}
	if rec.ScopePrompted {
		c.ScopePrompted = true
	}
	if rec.UnsupportedKPINotified {
		c.UnsupportedKPINotified = true
	}
}
