// Package arcade is a client for a hosted tool provider that lists,
// authorizes, and executes toolkit tools over HTTP.
package arcade

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/capitalize-ai/assistant/internal/model"
	"github.com/capitalize-ai/assistant/internal/toolprovider"
	"github.com/capitalize-ai/assistant/pkg/logger"
)

// DefaultBaseURL is the hosted API endpoint.
const DefaultBaseURL = "https://api.arcade.dev"

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("arcade: status %d: %s", e.StatusCode, e.Message)
}

// Config configures the client.
type Config struct {
	APIKey     string
	BaseURL    string
	Toolkits   []string
	MaxRetries int
	Timeout    time.Duration
}

// Client implements toolprovider.Provider against the hosted API.
type Client struct {
	cfg        Config
	http       *http.Client
	logger     *logger.Logger
	newBackOff func() backoff.BackOff

	mu    sync.RWMutex
	tools map[string]toolDefinition
	order []string
}

// New creates a client.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("arcade API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: log,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxInterval = 4 * time.Second
			return b
		},
		tools: make(map[string]toolDefinition),
	}, nil
}

type toolDefinition struct {
	Name               string `json:"name"`
	FullyQualifiedName string `json:"fully_qualified_name"`
	Description        string `json:"description"`
	Toolkit            struct {
		Name string `json:"name"`
	} `json:"toolkit"`
	Input struct {
		Parameters []parameter `json:"parameters"`
	} `json:"input"`
	Requirements *struct {
		Authorization *struct {
			ProviderID string `json:"provider_id"`
		} `json:"authorization"`
	} `json:"requirements"`
}

type parameter struct {
	Name        string `json:"name"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
	ValueSchema struct {
		ValType string   `json:"val_type"`
		Enum    []string `json:"enum,omitempty"`
	} `json:"value_schema"`
}

func (d toolDefinition) qualifiedName() string {
	if d.FullyQualifiedName != "" {
		// Drop a version suffix such as "GitHub.ListIssues@1.0.0".
		if i := strings.Index(d.FullyQualifiedName, "@"); i > 0 {
			return d.FullyQualifiedName[:i]
		}
		return d.FullyQualifiedName
	}
	if d.Toolkit.Name != "" {
		return d.Toolkit.Name + "." + d.Name
	}
	return d.Name
}

func (d toolDefinition) authProvider() string {
	if d.Requirements == nil || d.Requirements.Authorization == nil {
		return ""
	}
	if d.Requirements.Authorization.ProviderID == "" {
		return strings.ToLower(d.Toolkit.Name)
	}
	return d.Requirements.Authorization.ProviderID
}

func (d toolDefinition) info() model.ToolInfo {
	props := make(map[string]any, len(d.Input.Parameters))
	var required []string
	for _, p := range d.Input.Parameters {
		schema := map[string]any{
			"type":        jsonType(p.ValueSchema.ValType),
			"description": p.Description,
		}
		if len(p.ValueSchema.Enum) > 0 {
			schema["enum"] = p.ValueSchema.Enum
		}
		if schema["type"] == "array" {
			schema["items"] = map[string]any{"type": "string"}
		}
		props[p.Name] = schema
		if p.Required {
			required = append(required, p.Name)
		}
	}
	params := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		params["required"] = required
	}

	return model.ToolInfo{
		Name:        d.qualifiedName(),
		Description: d.Description,
		Parameters:  params,
		Toolkit:     d.Toolkit.Name,
	}
}

func jsonType(valType string) string {
	switch valType {
	case "integer", "number", "boolean", "array", "object":
		return valType
	case "json":
		return "object"
	default:
		return "string"
	}
}

// ListTools fetches the catalog of the configured toolkits.
func (c *Client) ListTools(ctx context.Context) ([]model.ToolInfo, error) {
	if err := c.loadTools(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.ToolInfo, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.tools[name].info())
	}
	return out, nil
}

func (c *Client) loadTools(ctx context.Context) error {
	c.mu.RLock()
	loaded := len(c.order) > 0
	c.mu.RUnlock()
	if loaded {
		return nil
	}

	toolkits := c.cfg.Toolkits
	if len(toolkits) == 0 {
		toolkits = []string{""}
	}

	var defs []toolDefinition
	for _, tk := range toolkits {
		q := url.Values{}
		q.Set("limit", "100")
		if tk != "" {
			q.Set("toolkit", tk)
		}
		var page struct {
			Items []toolDefinition `json:"items"`
		}
		if err := c.do(ctx, http.MethodGet, "/v1/tools?"+q.Encode(), nil, &page); err != nil {
			return fmt.Errorf("list tools %s: %w", tk, err)
		}
		defs = append(defs, page.Items...)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range defs {
		name := d.qualifiedName()
		if _, dup := c.tools[name]; !dup {
			c.order = append(c.order, name)
		}
		c.tools[name] = d
	}
	c.logger.Info("loaded tool catalog", zap.Int("tools", len(c.order)))
	return nil
}

func (c *Client) definition(ctx context.Context, tool string) (toolDefinition, error) {
	if err := c.loadTools(ctx); err != nil {
		return toolDefinition{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.tools[tool]
	if !ok {
		return toolDefinition{}, fmt.Errorf("%w: %s", toolprovider.ErrUnknownTool, tool)
	}
	return d, nil
}

// RequiresAuth reports whether the tool declares an authorization requirement.
func (c *Client) RequiresAuth(ctx context.Context, tool string) (bool, error) {
	d, err := c.definition(ctx, tool)
	if err != nil {
		return false, err
	}
	return d.authProvider() != "", nil
}

// Authorize starts or checks userID's authorization for tool.
func (c *Client) Authorize(ctx context.Context, tool, userID string) (toolprovider.AuthResponse, error) {
	body := map[string]string{"tool_name": tool, "user_id": userID}
	var resp struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		URL        string `json:"url"`
		ProviderID string `json:"provider_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/tools/authorize", body, &resp); err != nil {
		return toolprovider.AuthResponse{}, err
	}

	provider := resp.ProviderID
	if provider == "" {
		if d, err := c.definition(ctx, tool); err == nil {
			provider = d.authProvider()
		}
	}

	return toolprovider.AuthResponse{
		ID:       resp.ID,
		Status:   toolprovider.AuthStatus(resp.Status),
		URL:      resp.URL,
		Provider: provider,
	}, nil
}

// Execute runs tool for userID.
func (c *Client) Execute(ctx context.Context, tool string, args json.RawMessage, userID string) (toolprovider.Result, error) {
	input := args
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	body := struct {
		ToolName string          `json:"tool_name"`
		Input    json.RawMessage `json:"input"`
		UserID   string          `json:"user_id"`
	}{tool, input, userID}

	var resp struct {
		Success bool `json:"success"`
		Output  struct {
			Value json.RawMessage `json:"value"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
		} `json:"output"`
	}
	if err := c.send(ctx, http.MethodPost, "/v1/tools/execute", body, &resp, false); err != nil {
		return toolprovider.Result{}, err
	}

	res := toolprovider.Result{Success: resp.Success, Value: valueString(resp.Output.Value)}
	if resp.Output.Error != nil {
		res.Success = false
		res.Error = resp.Output.Error.Message
	}
	return res, nil
}

// valueString renders a JSON string value without quotes and anything
// else as raw JSON.
func valueString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// do sends an idempotent request, retrying server errors and transport
// failures.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	return c.send(ctx, method, path, in, out, true)
}

// send issues one API request. Rate limited requests are always retried.
// Server errors and transport failures are retried only when idempotent,
// since the provider may already have acted on the request.
func (c *Client) send(ctx context.Context, method, path string, in, out any, idempotent bool) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return err
		}
	}

	op := func() error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil || !idempotent {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return err
		}
		if resp.StatusCode >= 300 {
			apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
			if resp.StatusCode == http.StatusTooManyRequests || (idempotent && resp.StatusCode >= 500) {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode %s: %w", path, err))
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("tool provider request failed, retrying",
			zap.String("path", path),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.cfg.MaxRetries)), ctx)
	return backoff.RetryNotify(op, b, notify)
}

func errorMessage(data []byte) string {
	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &e) == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	return strings.TrimSpace(string(data))
}
