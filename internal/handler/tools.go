package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/assistant/internal/model"
	"github.com/capitalize-ai/assistant/pkg/logger"
)

// ToolLister lists the tool catalog.
type ToolLister interface {
	ListTools(ctx context.Context) ([]model.ToolInfo, error)
}

// ToolHandler serves the tool catalog.
type ToolHandler struct {
	tools  ToolLister
	logger *logger.Logger
}

// NewToolHandler creates a new tool handler.
func NewToolHandler(tools ToolLister, log *logger.Logger) *ToolHandler {
	return &ToolHandler{tools: tools, logger: log}
}

// List handles GET /api/v1/tools
func (h *ToolHandler) List(w http.ResponseWriter, r *http.Request) {
	tools, err := h.tools.ListTools(r.Context())
	if err != nil {
		h.logger.Error("failed to list tools", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to list tools")
		return
	}

	toolkit := r.URL.Query().Get("toolkit")
	out := make([]model.ToolInfo, 0, len(tools))
	for _, t := range tools {
		if toolkit == "" || t.Toolkit == toolkit {
			out = append(out, t)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": out})
}
