// Package gateway answers whether a tool needs user authorization and
// requests a consent URL when it does.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/assistant/internal/toolprovider"
	"github.com/capitalize-ai/assistant/pkg/logger"
)

// ErrUnavailable means the tool provider could not be reached. The
// authorization status is unknown and the call may be retried.
var ErrUnavailable = errors.New("tool gateway unavailable")

// Authorization is the result of asking for a user's consent.
type Authorization struct {
	Completed bool
	URL       string

	// Provider is the authorization provider (e.g. "github"); empty when
	// the tool provider did not say.
	Provider string
}

// Gateway is a thin adapter over a tool provider.
type Gateway struct {
	provider toolprovider.Provider
	logger   *logger.Logger

	mu       sync.RWMutex
	requires map[string]bool
}

// New creates a gateway over provider.
func New(provider toolprovider.Provider, log *logger.Logger) *Gateway {
	return &Gateway{
		provider: provider,
		logger:   log,
		requires: make(map[string]bool),
	}
}

// RequiresAuth reports whether tool needs per-user authorization.
// Answers are cached since tool definitions do not change at runtime.
func (g *Gateway) RequiresAuth(ctx context.Context, tool string) (bool, error) {
	g.mu.RLock()
	v, ok := g.requires[tool]
	g.mu.RUnlock()
	if ok {
		return v, nil
	}

	v, err := g.provider.RequiresAuth(ctx, tool)
	if err != nil {
		g.logger.Warn("requires_auth failed", zap.String("tool", tool), zap.Error(err))
		return false, fmt.Errorf("%w: requires_auth %s: %w", ErrUnavailable, tool, err)
	}

	g.mu.Lock()
	g.requires[tool] = v
	g.mu.Unlock()
	return v, nil
}

// Authorize asks the provider for userID's authorization of tool. It is
// cheap to call again once authorization has completed.
func (g *Gateway) Authorize(ctx context.Context, tool, userID string) (Authorization, error) {
	resp, err := g.provider.Authorize(ctx, tool, userID)
	if err != nil {
		g.logger.Warn("authorize failed",
			zap.String("tool", tool),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return Authorization{}, fmt.Errorf("%w: authorize %s: %w", ErrUnavailable, tool, err)
	}

	return Authorization{
		Completed: resp.Status == toolprovider.AuthStatusCompleted,
		URL:       resp.URL,
		Provider:  resp.Provider,
	}, nil
}
