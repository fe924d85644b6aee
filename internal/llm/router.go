package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/assistant/pkg/logger"
	"github.com/capitalize-ai/assistant/pkg/metrics"
)

// Router dispatches requests to a client by CompletionRequest.Provider,
// falling back to the default provider when it is empty.
type Router struct {
	clients         map[string]Client
	defaultProvider string
	logger          *logger.Logger
}

// NewRouter creates a router over clients keyed by Name().
func NewRouter(defaultProvider string, log *logger.Logger, clients ...Client) *Router {
	r := &Router{
		clients:         make(map[string]Client, len(clients)),
		defaultProvider: defaultProvider,
		logger:          log,
	}
	for _, c := range clients {
		r.clients[c.Name()] = c
	}
	return r
}

// Name returns "router".
func (r *Router) Name() string {
	return "router"
}

// Models returns the models of every registered client.
func (r *Router) Models() []string {
	var out []string
	for _, c := range r.clients {
		out = append(out, c.Models()...)
	}
	return out
}

// Providers returns the registered provider names.
func (r *Router) Providers() []string {
	out := make([]string, 0, len(r.clients))
	for name := range r.clients {
		out = append(out, name)
	}
	return out
}

// Has reports whether provider is registered.
func (r *Router) Has(provider string) bool {
	_, ok := r.clients[provider]
	return ok
}

// Complete routes req to its provider and records metrics.
func (r *Router) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	provider := req.Provider
	if provider == "" {
		provider = r.defaultProvider
	}
	c, ok := r.clients[provider]
	if !ok {
		return nil, fmt.Errorf("llm provider %q is not configured", provider)
	}

	start := time.Now()
	resp, err := c.Complete(ctx, req)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		metrics.RecordLLMRequest(provider, req.Model, "error", elapsed, 0, 0)
		r.logger.Error("llm request failed",
			zap.String("provider", provider),
			zap.String("model", req.Model),
			zap.Error(err),
		)
		return nil, err
	}

	metrics.RecordLLMRequest(provider, req.Model, "ok", elapsed, resp.TokensIn, resp.TokensOut)
	r.logger.Debug("llm request complete",
		zap.String("provider", provider),
		zap.String("model", resp.Model),
		zap.Int("tokens_in", resp.TokensIn),
		zap.Int("tokens_out", resp.TokensOut),
		zap.Int("tool_calls", len(resp.Message.ToolCalls)),
		zap.Int64("latency_ms", resp.LatencyMs),
	)
	return resp, nil
}
