package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/capitalize-ai/assistant/internal/gateway"
	"github.com/capitalize-ai/assistant/internal/model"
)

// AuthChecker is the part of the tool gateway the Authorization Gate uses.
type AuthChecker interface {
	RequiresAuth(ctx context.Context, tool string) (bool, error)
	Authorize(ctx context.Context, tool, userID string) (gateway.Authorization, error)
}

// PendingTool is one authorization the user still has to grant.
type PendingTool struct {
	// Name is the authorization provider, or the tool name when the
	// provider is unknown.
	Name string
	URL  string
}

// AuthDecision splits requested calls into those that may run now and
// the authorizations still outstanding.
type AuthDecision struct {
	Approved []model.ToolCall
	Pending  []PendingTool
}

// Gate decides which calls are authorized for userID. Each distinct tool
// is checked once. An error from checker aborts the decision since the
// authorization status is then unknown.
func Gate(ctx context.Context, calls []model.ToolCall, userID string, checker AuthChecker) (AuthDecision, error) {
	var decision AuthDecision

	type verdict struct {
		approved bool
		key      string
	}
	verdicts := make(map[string]verdict)
	pendingSeen := make(map[string]struct{})

	for _, call := range calls {
		v, checked := verdicts[call.Name]
		if !checked {
			needs, err := checker.RequiresAuth(ctx, call.Name)
			if err != nil {
				return AuthDecision{}, fmt.Errorf("check %s: %w", call.Name, err)
			}
			if !needs {
				v = verdict{approved: true}
			} else {
				auth, err := checker.Authorize(ctx, call.Name, userID)
				if err != nil {
					return AuthDecision{}, fmt.Errorf("authorize %s: %w", call.Name, err)
				}
				if auth.Completed {
					v = verdict{approved: true}
				} else {
					key := auth.Provider
					if key == "" {
						key = call.Name
					}
					v = verdict{key: key}
					if _, ok := pendingSeen[key]; !ok {
						pendingSeen[key] = struct{}{}
						decision.Pending = append(decision.Pending, PendingTool{Name: key, URL: auth.URL})
					}
				}
			}
			verdicts[call.Name] = v
		}

		if v.approved {
			decision.Approved = append(decision.Approved, call)
		}
	}

	return decision, nil
}

// AuthMessage renders the user-facing request to authorize pending tools.
func AuthMessage(pending []PendingTool) string {
	switch len(pending) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("Please authorize the **%s** tool by visiting %s\nOnce authorized, resend the message.",
			pending[0].Name, pending[0].URL)
	}

	var b strings.Builder
	b.WriteString("Please authorize access for the following tools:\n")
	for i, p := range pending {
		fmt.Fprintf(&b, "%d. **%s**: %s\n", i+1, p.Name, p.URL)
	}
	b.WriteString("After authorizing, please resend the message.")
	return b.String()
}
