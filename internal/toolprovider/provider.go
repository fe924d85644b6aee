// Package toolprovider defines the contract for services that list,
// authorize, and execute tools on behalf of a user.
package toolprovider

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/capitalize-ai/assistant/internal/model"
)

// ErrUnknownTool is returned for a tool name the provider does not serve.
var ErrUnknownTool = errors.New("unknown tool")

// AuthStatus is the state of a user's authorization for a tool.
type AuthStatus string

const (
	AuthStatusCompleted AuthStatus = "completed"
	AuthStatusPending   AuthStatus = "pending"
	AuthStatusFailed    AuthStatus = "failed"
)

// AuthResponse is the provider's answer to an authorization request.
type AuthResponse struct {
	ID     string     `json:"id,omitempty"`
	Status AuthStatus `json:"status"`
	URL    string     `json:"url,omitempty"`

	// Provider names the OAuth provider behind the tool, e.g. "github".
	Provider string `json:"provider_id,omitempty"`
}

// Result is the outcome of one tool execution.
type Result struct {
	Success bool   `json:"success"`
	Value   string `json:"value,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Provider lists, authorizes, and executes tools.
type Provider interface {
	ListTools(ctx context.Context) ([]model.ToolInfo, error)
	RequiresAuth(ctx context.Context, tool string) (bool, error)
	Authorize(ctx context.Context, tool, userID string) (AuthResponse, error)
	Execute(ctx context.Context, tool string, args json.RawMessage, userID string) (Result, error)
}

// Tool names use "." between toolkit and tool ("GitHub.ListIssues"),
// which model APIs reject in function names.
const modelSeparator = "__"

// ModelName encodes a tool name for a model API.
func ModelName(tool string) string {
	return strings.ReplaceAll(tool, ".", modelSeparator)
}

// ToolName decodes a name produced by ModelName.
func ToolName(modelName string) string {
	return strings.ReplaceAll(modelName, modelSeparator, ".")
}

// Toolkit returns the toolkit part of a tool name, or "" if there is none.
func Toolkit(tool string) string {
	if i := strings.Index(tool, "."); i > 0 {
		return tool[:i]
	}
	return ""
}
