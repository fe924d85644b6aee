package engine

import "github.com/capitalize-ai/assistant/internal/model"

// Outcome is the result of driving a conversation one or more steps.
// It is one of Continue, Suspend, or Done.
type Outcome interface {
	outcome()
}

// Continue means tool results were folded into State and the model
// should be consulted again.
type Continue struct {
	State *model.ConversationState
}

// Suspend means one or more tools need the user's authorization. The
// conversation was saved under SnapshotID.
type Suspend struct {
	Pending    []PendingTool
	SnapshotID string
	Message    string
}

// Done means the model produced a final answer.
type Done struct {
	Content string
	State   *model.ConversationState
}

func (Continue) outcome() {}
func (Suspend) outcome()  {}
func (Done) outcome()     {}

// PendingMap returns the pending tools keyed by name.
func (s Suspend) PendingMap() map[string]string {
	out := make(map[string]string, len(s.Pending))
	for _, p := range s.Pending {
		out[p.Name] = p.URL
	}
	return out
}

// AssistantOutcome is what a single model turn asked for: either Final
// or ToolCallsRequested.
type AssistantOutcome interface {
	assistantOutcome()
}

// Final carries the model's answer.
type Final struct {
	Content string
}

// ToolCallsRequested carries the calls the model wants run, in order.
type ToolCallsRequested struct {
	Calls []model.ToolCall
}

func (Final) assistantOutcome()              {}
func (ToolCallsRequested) assistantOutcome() {}
