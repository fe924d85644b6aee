package engine

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/capitalize-ai/assistant/internal/model"
	"github.com/capitalize-ai/assistant/internal/toolprovider"
	"github.com/capitalize-ai/assistant/pkg/logger"
)

func TestExecutePreservesOrder(t *testing.T) {
	r := newFakeRunner()
	r.delays["slow"] = 30 * time.Millisecond
	r.delays["medium"] = 10 * time.Millisecond
	e := NewExecutor(r, 3, logger.NewNop())

	calls := []model.ToolCall{
		{ID: "1", Name: "slow"},
		{ID: "2", Name: "medium"},
		{ID: "3", Name: "fast"},
	}
	results := e.Execute(context.Background(), calls, "U1")

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, res := range results {
		if res.Role != model.RoleTool || res.ToolCallID != calls[i].ID {
			t.Errorf("result %d = %+v, want answer to %s", i, res, calls[i].ID)
		}
		if res.Content != calls[i].Name+" ok" {
			t.Errorf("result %d content = %q", i, res.Content)
		}
	}
}

func TestExecuteCapturesFailures(t *testing.T) {
	r := newFakeRunner()
	r.errs["broken"] = errors.New("rate limited by github")
	r.results["refused"] = toolprovider.Result{Success: false, Error: "repository not found"}
	e := NewExecutor(r, 2, logger.NewNop())

	calls := []model.ToolCall{
		{ID: "1", Name: "broken"},
		{ID: "2", Name: "fine"},
		{ID: "3", Name: "refused"},
	}
	results := e.Execute(context.Background(), calls, "U1")

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if !strings.Contains(results[0].Content, "rate limited by github") || !strings.HasPrefix(results[0].Content, "Error:") {
		t.Errorf("error result = %q", results[0].Content)
	}
	if results[1].Content != "fine ok" {
		t.Errorf("healthy call affected by failure: %q", results[1].Content)
	}
	if !strings.Contains(results[2].Content, "repository not found") {
		t.Errorf("failed result = %q", results[2].Content)
	}
}

type countingRunner struct {
	active, peak atomic.Int32
}

func (c *countingRunner) Execute(ctx context.Context, tool string, _ []byte, _ string) (toolprovider.Result, error) {
	n := c.active.Add(1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	c.active.Add(-1)
	return toolprovider.Result{Success: true}, nil
}

type panicRunner struct{}

func (panicRunner) Execute(context.Context, string, []byte, string) (toolprovider.Result, error) {
	panic("nil map")
}

func TestExecutePanicBecomesResult(t *testing.T) {
	e := NewExecutor(toolRunnerFunc(panicRunner{}.Execute), 1, logger.NewNop())
	results := e.Execute(context.Background(), []model.ToolCall{{ID: "1", Name: "boom"}}, "U1")
	if len(results) != 1 || !strings.Contains(results[0].Content, "panicked") {
		t.Errorf("results = %+v", results)
	}
}

func TestExecuteRespectsConcurrency(t *testing.T) {
	r := &countingRunner{}
	e := NewExecutor(toolRunnerFunc(r.Execute), 2, logger.NewNop())

	calls := make([]model.ToolCall, 8)
	for i := range calls {
		calls[i] = model.ToolCall{ID: string(rune('a' + i)), Name: "t"}
	}
	e.Execute(context.Background(), calls, "U1")

	if p := r.peak.Load(); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}
}

func TestExecuteEmpty(t *testing.T) {
	e := NewExecutor(newFakeRunner(), 2, logger.NewNop())
	if got := e.Execute(context.Background(), nil, "U1"); len(got) != 0 {
		t.Errorf("got %d results for no calls", len(got))
	}
}
