package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/assistant/internal/llm"
	"github.com/capitalize-ai/assistant/internal/model"
)

// TurnController runs one model inference step over a conversation.
type TurnController struct {
	client    llm.Client
	catalog   []model.ToolInfo
	maxTokens int
	now       func() time.Time
}

// NewTurnController creates a controller that offers catalog to client.
func NewTurnController(client llm.Client, catalog []model.ToolInfo, maxTokens int) *TurnController {
	return &TurnController{
		client:    client,
		catalog:   catalog,
		maxTokens: maxTokens,
		now:       time.Now,
	}
}

// RunTurn asks the model for the next step and appends exactly one
// assistant message to state. It never runs tools.
func (t *TurnController) RunTurn(ctx context.Context, state *model.ConversationState) (AssistantOutcome, error) {
	resp, err := t.client.Complete(ctx, &llm.CompletionRequest{
		Provider:  state.Provider,
		Model:     state.Model,
		Messages:  state.Messages,
		Tools:     t.catalog,
		MaxTokens: t.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}

	msg := resp.Message
	msg.Role = model.RoleAssistant
	msg.ToolCalls = uniqueCallIDs(msg.ToolCalls)
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = t.now().UTC()
	}
	state.Append(msg)

	if len(msg.ToolCalls) == 0 {
		return Final{Content: msg.Content}, nil
	}
	return ToolCallsRequested{Calls: append([]model.ToolCall(nil), msg.ToolCalls...)}, nil
}

// uniqueCallIDs assigns ids to calls that lack one or repeat an earlier id.
func uniqueCallIDs(calls []model.ToolCall) []model.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(calls))
	out := make([]model.ToolCall, len(calls))
	for i, c := range calls {
		if _, dup := seen[c.ID]; c.ID == "" || dup {
			c.ID = "call_" + uuid.NewString()
		}
		seen[c.ID] = struct{}{}
		out[i] = c
	}
	return out
}
