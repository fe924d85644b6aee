package handler

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/assistant/internal/middleware"
	"github.com/capitalize-ai/assistant/internal/model"
	"github.com/capitalize-ai/assistant/internal/service"
	"github.com/capitalize-ai/assistant/pkg/logger"
)

// Profiles reads and updates model preferences.
type Profiles interface {
	Get(ctx context.Context, userID string) (*model.UserProfile, error)
	Update(ctx context.Context, userID string, req *model.UpdateProfileRequest) (*model.UserProfile, error)
	Models() []model.ModelInfo
}

// ProfileHandler handles profile and model catalog endpoints.
type ProfileHandler struct {
	profiles Profiles
	logger   *logger.Logger
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(profiles Profiles, log *logger.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: log}
}

// Get handles GET /api/v1/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	p, err := h.profiles.Get(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to load profile", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Update handles PUT /api/v1/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateModelName(req.Model); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := middleware.GetUserID(r.Context())
	p, err := h.profiles.Update(r.Context(), userID, &req)
	if err != nil {
		if errors.Is(err, service.ErrUnknownModel) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to update profile", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Models handles GET /api/v1/models
func (h *ProfileHandler) Models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"models": h.profiles.Models(),
	})
}
