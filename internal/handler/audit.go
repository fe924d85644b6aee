package handler

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/capitalize-ai/assistant/internal/middleware"
	"github.com/capitalize-ai/assistant/internal/model"
	"github.com/capitalize-ai/assistant/pkg/logger"
)

// EventReader reads a user's audit events.
type EventReader interface {
	Events(ctx context.Context, userID string, afterSequence uint64, limit int) ([]model.ConversationEvent, error)
}

// AuditHandler serves the conversation audit trail.
type AuditHandler struct {
	events EventReader
	logger *logger.Logger
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(events EventReader, log *logger.Logger) *AuditHandler {
	return &AuditHandler{events: events, logger: log}
}

// List handles GET /api/v1/events
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	afterSequence := uint64(0)
	limit := 50

	if seq := r.URL.Query().Get("after_sequence"); seq != "" {
		if parsed, err := strconv.ParseUint(seq, 10, 64); err == nil {
			afterSequence = parsed
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	userID := middleware.GetUserID(r.Context())
	events, err := h.events.Events(r.Context(), userID, afterSequence, limit)
	if err != nil {
		h.logger.Error("failed to read events", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}

	var last uint64
	if n := len(events); n > 0 {
		last = events[n-1].Sequence
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events":        events,
		"last_sequence": last,
		"has_more":      len(events) == limit,
	})
}
