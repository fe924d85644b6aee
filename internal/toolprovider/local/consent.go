package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/capitalize-ai/assistant/internal/store"
	"github.com/capitalize-ai/assistant/pkg/logger"
)

// ErrInvalidState is returned for an unknown, expired, or mismatched
// OAuth state parameter.
var ErrInvalidState = errors.New("invalid oauth state")

// ErrUnknownProvider is returned for a provider with no OAuth config.
var ErrUnknownProvider = errors.New("oauth provider is not configured")

const stateTTL = 15 * time.Minute

type pendingState struct {
	UserID    string    `json:"user_id"`
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"created_at"`
}

// Consent issues OAuth consent URLs and stores the resulting tokens.
// State and tokens live in the KV store so any replica can finish a flow.
type Consent struct {
	configs map[string]*oauth2.Config
	kv      store.KV
	logger  *logger.Logger
	now     func() time.Time
}

// NewConsent creates a consent manager over the given provider configs.
func NewConsent(kv store.KV, configs map[string]*oauth2.Config, log *logger.Logger) *Consent {
	return &Consent{configs: configs, kv: kv, logger: log, now: time.Now}
}

// Providers returns the configured provider names.
func (c *Consent) Providers() []string {
	out := make([]string, 0, len(c.configs))
	for name := range c.configs {
		out = append(out, name)
	}
	return out
}

// AuthURL returns a consent URL binding a fresh state to userID.
func (c *Consent) AuthURL(ctx context.Context, provider, userID string) (string, error) {
	cfg, ok := c.configs[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	state := uuid.NewString()
	data, err := json.Marshal(pendingState{UserID: userID, Provider: provider, CreatedAt: c.now().UTC()})
	if err != nil {
		return "", err
	}
	if err := c.kv.Put(ctx, stateKey(state), data); err != nil {
		return "", fmt.Errorf("save oauth state: %w", err)
	}
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// Complete exchanges code for a token and stores it for the user that
// started the flow. It returns that user's id.
func (c *Consent) Complete(ctx context.Context, provider, state, code string) (string, error) {
	cfg, ok := c.configs[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	raw, err := c.kv.Get(ctx, stateKey(state))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidState
		}
		return "", fmt.Errorf("load oauth state: %w", err)
	}
	if err := c.kv.Delete(ctx, stateKey(state)); err != nil {
		c.logger.Warn("failed to delete oauth state",
			zap.String("provider", provider),
			zap.Error(err),
		)
	}

	var ps pendingState
	if err := json.Unmarshal(raw, &ps); err != nil {
		return "", ErrInvalidState
	}
	if ps.Provider != provider || c.now().Sub(ps.CreatedAt) > stateTTL {
		return "", ErrInvalidState
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange code: %w", err)
	}
	data, err := json.Marshal(token)
	if err != nil {
		return "", err
	}
	if err := c.kv.Put(ctx, store.TokenKey(provider, ps.UserID), data); err != nil {
		return "", fmt.Errorf("save token: %w", err)
	}
	return ps.UserID, nil
}

// Token returns the stored token of userID for provider, or
// store.ErrNotFound.
func (c *Consent) Token(ctx context.Context, provider, userID string) (*oauth2.Token, error) {
	raw, err := c.kv.Get(ctx, store.TokenKey(provider, userID))
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &tok, nil
}

func stateKey(state string) string {
	return "oauthstate." + state
}
