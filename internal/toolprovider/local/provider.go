// Package local serves tools in-process: a GitHub toolkit authorized
// through OAuth and utility tools that need no authorization.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/capitalize-ai/assistant/internal/model"
	"github.com/capitalize-ai/assistant/internal/store"
	"github.com/capitalize-ai/assistant/internal/toolprovider"
	"github.com/capitalize-ai/assistant/pkg/logger"
)

// RunFunc executes a tool. token is nil for tools without an auth provider.
type RunFunc func(ctx context.Context, args json.RawMessage, token *oauth2.Token) (string, error)

// Tool is one locally served tool.
type Tool struct {
	Info model.ToolInfo

	// AuthProvider is the OAuth provider guarding the tool; empty means
	// no authorization is needed.
	AuthProvider string
	Run          RunFunc
}

// Provider implements toolprovider.Provider for local tools.
type Provider struct {
	tools   map[string]Tool
	order   []string
	consent *Consent
	logger  *logger.Logger
}

// New creates a provider serving tools. consent may be nil when no tool
// needs authorization.
func New(consent *Consent, log *logger.Logger, tools ...Tool) *Provider {
	p := &Provider{
		tools:   make(map[string]Tool, len(tools)),
		consent: consent,
		logger:  log,
	}
	for _, t := range tools {
		if _, dup := p.tools[t.Info.Name]; !dup {
			p.order = append(p.order, t.Info.Name)
		}
		p.tools[t.Info.Name] = t
	}
	return p
}

// ListTools returns the tool catalog in registration order.
func (p *Provider) ListTools(context.Context) ([]model.ToolInfo, error) {
	out := make([]model.ToolInfo, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.tools[name].Info)
	}
	return out, nil
}

// RequiresAuth reports whether tool is guarded by an OAuth provider.
func (p *Provider) RequiresAuth(_ context.Context, tool string) (bool, error) {
	t, ok := p.tools[tool]
	if !ok {
		return false, fmt.Errorf("%w: %s", toolprovider.ErrUnknownTool, tool)
	}
	return t.AuthProvider != "", nil
}

// Authorize reports completed once the user has a stored token, and
// otherwise returns a consent URL.
func (p *Provider) Authorize(ctx context.Context, tool, userID string) (toolprovider.AuthResponse, error) {
	t, ok := p.tools[tool]
	if !ok {
		return toolprovider.AuthResponse{}, fmt.Errorf("%w: %s", toolprovider.ErrUnknownTool, tool)
	}
	if t.AuthProvider == "" {
		return toolprovider.AuthResponse{Status: toolprovider.AuthStatusCompleted}, nil
	}
	if p.consent == nil {
		return toolprovider.AuthResponse{}, errors.New("oauth consent is not configured")
	}

	_, err := p.consent.Token(ctx, t.AuthProvider, userID)
	if err == nil {
		return toolprovider.AuthResponse{Status: toolprovider.AuthStatusCompleted, Provider: t.AuthProvider}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return toolprovider.AuthResponse{}, err
	}

	url, err := p.consent.AuthURL(ctx, t.AuthProvider, userID)
	if err != nil {
		return toolprovider.AuthResponse{}, err
	}
	return toolprovider.AuthResponse{
		Status:   toolprovider.AuthStatusPending,
		URL:      url,
		Provider: t.AuthProvider,
	}, nil
}

// Execute runs tool for userID. Tool failures are reported in the Result.
func (p *Provider) Execute(ctx context.Context, tool string, args json.RawMessage, userID string) (toolprovider.Result, error) {
	t, ok := p.tools[tool]
	if !ok {
		return toolprovider.Result{}, fmt.Errorf("%w: %s", toolprovider.ErrUnknownTool, tool)
	}

	var token *oauth2.Token
	if t.AuthProvider != "" {
		if p.consent == nil {
			return toolprovider.Result{Error: "authorization is not configured"}, nil
		}
		tok, err := p.consent.Token(ctx, t.AuthProvider, userID)
		if errors.Is(err, store.ErrNotFound) {
			return toolprovider.Result{Error: fmt.Sprintf("%s authorization required", t.AuthProvider)}, nil
		}
		if err != nil {
			return toolprovider.Result{}, err
		}
		token = tok
	}

	out, err := t.Run(ctx, args, token)
	if err != nil {
		p.logger.Debug("local tool failed", zap.String("tool", tool), zap.Error(err))
		return toolprovider.Result{Error: err.Error()}, nil
	}
	return toolprovider.Result{Success: true, Value: out}, nil
}
