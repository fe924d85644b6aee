package engine

import (
	"github.com/capitalize-ai/assistant/internal/model"
)

// PlaceholderResult is the body of a tool result synthesized for a call
// that was interrupted by a suspension.
const PlaceholderResult = "Authorization completed. Tool ready to use."

// Reconcile finds the most recent assistant message with tool calls and
// inserts a placeholder result for each of its calls that has no result
// after it. Placeholders go directly after the assistant message in call
// order. It returns the new history and the calls that were repaired.
func Reconcile(msgs []model.Message) ([]model.Message, []model.ToolCall) {
	idx := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].HasToolCalls() {
			idx = i
			break
		}
	}
	if idx < 0 {
		return msgs, nil
	}

	answered := make(map[string]struct{})
	for _, m := range msgs[idx+1:] {
		if m.Role == model.RoleTool && m.ToolCallID != "" {
			answered[m.ToolCallID] = struct{}{}
		}
	}

	var missing []model.ToolCall
	for _, call := range msgs[idx].ToolCalls {
		if _, ok := answered[call.ID]; !ok {
			missing = append(missing, call)
		}
	}
	if len(missing) == 0 {
		return msgs, nil
	}

	out := make([]model.Message, 0, len(msgs)+len(missing))
	out = append(out, msgs[:idx+1]...)
	for _, call := range missing {
		out = append(out, model.NewToolResult(call, PlaceholderResult))
	}
	out = append(out, msgs[idx+1:]...)
	return out, missing
}

// ClearPending marks every pending authorization as granted.
func ClearPending(state *model.ConversationState) {
	for k := range state.PendingAuthorizations {
		state.PendingAuthorizations[k] = model.PendingAuthorization{Cleared: true}
	}
}

// replaceResults swaps each result into the slot of the tool message
// answering the same call after the last assistant message with tool
// calls. Results with no slot are appended.
func replaceResults(msgs []model.Message, results []model.Message) []model.Message {
	start := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].HasToolCalls() {
			start = i + 1
			break
		}
	}

	pos := make(map[string]int)
	for i := start; i < len(msgs); i++ {
		if msgs[i].Role == model.RoleTool {
			pos[msgs[i].ToolCallID] = i
		}
	}
	for _, r := range results {
		if i, ok := pos[r.ToolCallID]; ok {
			msgs[i] = r
			continue
		}
		msgs = append(msgs, r)
	}
	return msgs
}
