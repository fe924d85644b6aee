package engine

import (
	"testing"

	"github.com/capitalize-ai/assistant/internal/model"
)

func TestReconcileInsertsMissingInCallOrder(t *testing.T) {
	a := model.ToolCall{ID: "a", Name: "t1"}
	b := model.ToolCall{ID: "b", Name: "t2"}
	c := model.ToolCall{ID: "c", Name: "t3"}
	msgs := []model.Message{
		model.NewUserMessage("go"),
		assistantCalls(a, b, c),
		model.NewToolResult(b, "b result"),
	}

	out, repaired := Reconcile(msgs)

	if len(repaired) != 2 || repaired[0].ID != "a" || repaired[1].ID != "c" {
		t.Fatalf("repaired = %+v, want [a c]", repaired)
	}
	wantIDs := []string{"", "", "a", "c", "b"}
	if len(out) != len(wantIDs) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(wantIDs))
	}
	for i, id := range wantIDs {
		if out[i].ToolCallID != id {
			t.Errorf("out[%d].ToolCallID = %q, want %q", i, out[i].ToolCallID, id)
		}
	}
	if out[2].Content != PlaceholderResult || out[3].Content != PlaceholderResult {
		t.Errorf("placeholder content = %q, %q", out[2].Content, out[3].Content)
	}
	if out[4].Content != "b result" {
		t.Errorf("existing result changed: %q", out[4].Content)
	}
	if len(msgs) != 3 {
		t.Error("input slice was modified")
	}
}

func TestReconcilePairingInvariant(t *testing.T) {
	calls := []model.ToolCall{{ID: "1"}, {ID: "2"}, {ID: "3"}}
	out, _ := Reconcile([]model.Message{assistantCalls(calls...), model.NewToolResult(calls[1], "x")})

	counts := map[string]int{}
	for _, m := range out {
		if m.Role == model.RoleTool {
			counts[m.ToolCallID]++
		}
	}
	for _, c := range calls {
		if counts[c.ID] != 1 {
			t.Errorf("call %s has %d results, want 1", c.ID, counts[c.ID])
		}
	}
}

func TestReconcileNoop(t *testing.T) {
	a := model.ToolCall{ID: "a"}
	tests := []struct {
		name string
		msgs []model.Message
	}{
		{"empty", nil},
		{"no tool calls", []model.Message{model.NewUserMessage("hi"), assistantText("hello")}},
		{"all answered", []model.Message{assistantCalls(a), model.NewToolResult(a, "ok")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, repaired := Reconcile(tt.msgs)
			if len(repaired) != 0 || len(out) != len(tt.msgs) {
				t.Errorf("Reconcile changed history: %+v", out)
			}
		})
	}
}

func TestReconcileUsesLatestAssistant(t *testing.T) {
	old := model.ToolCall{ID: "old"}
	cur := model.ToolCall{ID: "cur"}
	msgs := []model.Message{
		assistantCalls(old),
		model.NewUserMessage("never mind"),
		assistantCalls(cur),
	}
	out, repaired := Reconcile(msgs)
	if len(repaired) != 1 || repaired[0].ID != "cur" {
		t.Fatalf("repaired = %+v, want [cur]", repaired)
	}
	if out[len(out)-1].ToolCallID != "cur" {
		t.Errorf("placeholder not placed after latest assistant: %+v", out)
	}
}

func TestClearPending(t *testing.T) {
	s := &model.ConversationState{PendingAuthorizations: map[string]model.PendingAuthorization{
		"github": {URL: "https://auth/1"},
		"google": {URL: "https://auth/2"},
	}}
	ClearPending(s)
	for k, v := range s.PendingAuthorizations {
		if !v.Cleared || v.URL != "" {
			t.Errorf("%s = %+v, want cleared", k, v)
		}
	}
}

func TestReplaceResults(t *testing.T) {
	a := model.ToolCall{ID: "a"}
	b := model.ToolCall{ID: "b"}
	msgs := []model.Message{
		assistantCalls(a, b),
		model.NewToolResult(a, PlaceholderResult),
		model.NewToolResult(b, "done earlier"),
	}
	out := replaceResults(msgs, []model.Message{model.NewToolResult(a, "real")})
	if len(out) != 3 || out[1].Content != "real" || out[2].Content != "done earlier" {
		t.Errorf("replaceResults = %+v", out)
	}
}
