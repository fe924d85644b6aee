package handler

import (
	"context"
	"errors"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/assistant/internal/toolprovider/local"
	"github.com/capitalize-ai/assistant/pkg/logger"
)

// ConsentCompleter finishes an OAuth consent flow.
type ConsentCompleter interface {
	Complete(ctx context.Context, provider, state, code string) (string, error)
}

// OAuthHandler receives OAuth provider redirects.
type OAuthHandler struct {
	consent ConsentCompleter
	logger  *logger.Logger
}

// NewOAuthHandler creates a new OAuth handler.
func NewOAuthHandler(consent ConsentCompleter, log *logger.Logger) *OAuthHandler {
	return &OAuthHandler{consent: consent, logger: log}
}

var callbackPage = template.Must(template.New("callback").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body><h1>{{.Title}}</h1><p>{{.Body}}</p></body></html>
`))

type callbackView struct {
	Title string
	Body  string
}

// Callback handles GET /oauth/{provider}/callback
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		h.render(w, http.StatusBadRequest, callbackView{"Authorization declined", "The provider reported: " + e})
		return
	}

	state, code := q.Get("state"), q.Get("code")
	if state == "" || code == "" {
		h.render(w, http.StatusBadRequest, callbackView{"Authorization failed", "The request is missing its state or code."})
		return
	}

	userID, err := h.consent.Complete(r.Context(), provider, state, code)
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, local.ErrInvalidState):
			status = http.StatusBadRequest
		case errors.Is(err, local.ErrUnknownProvider):
			status = http.StatusNotFound
		}
		h.logger.Warn("oauth callback failed", zap.String("provider", provider), zap.Error(err))
		h.render(w, status, callbackView{"Authorization failed", "This link has expired or was already used. Ask the assistant again to get a new one."})
		return
	}

	h.logger.Info("oauth authorization stored", zap.String("provider", provider), zap.String("user_id", userID))
	h.render(w, http.StatusOK, callbackView{"Authorization complete", "You can close this window and return to the conversation."})
}

func (h *OAuthHandler) render(w http.ResponseWriter, status int, v callbackView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := callbackPage.Execute(w, v); err != nil {
		h.logger.Error("failed to render callback page", zap.Error(err))
	}
}
