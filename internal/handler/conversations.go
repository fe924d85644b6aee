// Package handler implements the JSON HTTP API.
package handler

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/assistant/internal/engine"
	"github.com/capitalize-ai/assistant/internal/middleware"
	"github.com/capitalize-ai/assistant/internal/model"
	"github.com/capitalize-ai/assistant/internal/service"
	"github.com/capitalize-ai/assistant/pkg/logger"
)

// Conversations answers messages and resumes suspended conversations.
type Conversations interface {
	HandleEvent(ctx context.Context, ev model.InboundEvent) (service.Reply, error)
	Resume(ctx context.Context, req model.ResumeRequest) (service.Reply, error)
}

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	conversations Conversations
	logger        *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(conversations Conversations, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		logger:        log,
	}
}

type eventRequest struct {
	EventID    string          `json:"event_id"`
	Text       string          `json:"text"`
	Locator    model.Locator   `json:"locator"`
	Transcript []model.Message `json:"transcript"`
}

// Event handles POST /api/v1/events
func (h *ConversationHandler) Event(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageContent(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateEventID(req.EventID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := h.conversations.HandleEvent(r.Context(), model.InboundEvent{
		EventID:    req.EventID,
		UserID:     middleware.GetUserID(r.Context()),
		Text:       req.Text,
		Locator:    req.Locator,
		Transcript: req.Transcript,
	})
	h.writeReply(w, r, reply, err)
}

type resumeRequest struct {
	EventID    string          `json:"event_id"`
	SnapshotID string          `json:"snapshot_id"`
	Message    string          `json:"message"`
	Locator    model.Locator   `json:"locator"`
	Transcript []model.Message `json:"transcript"`
}

// Resume handles POST /api/v1/resume
func (h *ConversationHandler) Resume(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateSnapshotID(req.SnapshotID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SnapshotID == "" && len(req.Transcript) == 0 {
		writeError(w, http.StatusBadRequest, "snapshot_id or transcript is required")
		return
	}

	reply, err := h.conversations.Resume(r.Context(), model.ResumeRequest{
		EventID:    req.EventID,
		UserID:     middleware.GetUserID(r.Context()),
		SnapshotID: req.SnapshotID,
		Message:    req.Message,
		Locator:    req.Locator,
		Transcript: req.Transcript,
	})
	h.writeReply(w, r, reply, err)
}

func (h *ConversationHandler) writeReply(w http.ResponseWriter, r *http.Request, reply service.Reply, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, reply)
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrNoResumeSource):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrSnapshotPersist):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	h.logger.Warn("conversation request failed",
		zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
		zap.Int("status", status),
		zap.Error(err),
	)
	writeJSON(w, status, reply)
}
