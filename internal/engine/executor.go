package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/assistant/internal/model"
	"github.com/capitalize-ai/assistant/internal/toolprovider"
	"github.com/capitalize-ai/assistant/pkg/logger"
	"github.com/capitalize-ai/assistant/pkg/metrics"
)

// ToolRunner runs a single tool for a user.
type ToolRunner interface {
	Execute(ctx context.Context, tool string, args json.RawMessage, userID string) (toolprovider.Result, error)
}

// Executor runs approved tool calls concurrently and returns their
// results in call order.
type Executor struct {
	runner      ToolRunner
	concurrency int
	logger      *logger.Logger
}

// NewExecutor creates an executor running at most concurrency calls at once.
func NewExecutor(runner ToolRunner, concurrency int, log *logger.Logger) *Executor {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Executor{runner: runner, concurrency: concurrency, logger: log}
}

// Execute returns one tool message per call, in the order of calls. A
// failing call yields an error description as its content.
func (e *Executor) Execute(ctx context.Context, calls []model.ToolCall, userID string) []model.Message {
	results := make([]model.Message, len(calls))
	sem := make(chan struct{}, e.concurrency)

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call model.ToolCall) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = model.NewToolResult(call, errorContent(ctx.Err()))
				return
			}

			results[i] = model.NewToolResult(call, e.run(ctx, call, userID))
		}(i, call)
	}
	wg.Wait()

	return results
}

func (e *Executor) run(ctx context.Context, call model.ToolCall, userID string) (content string) {
	start := time.Now()
	status := "ok"
	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			content = errorContent(fmt.Errorf("tool panicked: %v", r))
			e.logger.Error("tool panicked", zap.String("tool", call.Name), zap.Any("panic", r))
		}
		metrics.RecordToolExecution(call.Name, status, time.Since(start).Seconds())
	}()

	res, err := e.runner.Execute(ctx, call.Name, call.Arguments, userID)
	if err != nil {
		status = "error"
		e.logger.Warn("tool execution failed",
			zap.String("tool", call.Name),
			zap.String("tool_call_id", call.ID),
			zap.Error(err),
		)
		return errorContent(err)
	}
	if !res.Success {
		status = "failed"
		msg := res.Error
		if msg == "" {
			msg = "tool reported failure"
		}
		return errorContent(errors.New(msg))
	}

	e.logger.Debug("tool executed",
		zap.String("tool", call.Name),
		zap.String("tool_call_id", call.ID),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res.Value
}

func errorContent(err error) string {
	return "Error: " + err.Error()
}
