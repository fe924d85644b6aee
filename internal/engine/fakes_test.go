package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/capitalize-ai/assistant/internal/gateway"
	"github.com/capitalize-ai/assistant/internal/llm"
	"github.com/capitalize-ai/assistant/internal/model"
	"github.com/capitalize-ai/assistant/internal/store"
	"github.com/capitalize-ai/assistant/internal/toolprovider"
	"github.com/capitalize-ai/assistant/pkg/logger"
)

// scriptedLLM replies with its responses in order and records the
// history it was shown on each call.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []model.Message
	err       error
	histories [][]model.Message
}

func (s *scriptedLLM) Complete(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.histories = append(s.histories, append([]model.Message(nil), req.Messages...))
	if s.err != nil {
		return nil, s.err
	}
	i := len(s.histories) - 1
	if i >= len(s.responses) {
		return nil, errors.New("scriptedLLM: no more responses")
	}
	return &llm.CompletionResponse{Message: s.responses[i]}, nil
}

func (s *scriptedLLM) Name() string     { return "scripted" }
func (s *scriptedLLM) Models() []string { return nil }

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.histories)
}

type fakeChecker struct {
	mu            sync.Mutex
	requires      map[string]bool
	auth          map[string]gateway.Authorization
	err           error
	requiresCalls map[string]int
	authorizeCall map[string]int
}

func newFakeChecker() *fakeChecker {
	return &fakeChecker{
		requires:      make(map[string]bool),
		auth:          make(map[string]gateway.Authorization),
		requiresCalls: make(map[string]int),
		authorizeCall: make(map[string]int),
	}
}

func (f *fakeChecker) RequiresAuth(_ context.Context, tool string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requiresCalls[tool]++
	if f.err != nil {
		return false, f.err
	}
	return f.requires[tool], nil
}

func (f *fakeChecker) Authorize(_ context.Context, tool, _ string) (gateway.Authorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authorizeCall[tool]++
	if f.err != nil {
		return gateway.Authorization{}, f.err
	}
	return f.auth[tool], nil
}

type fakeRunner struct {
	mu      sync.Mutex
	results map[string]toolprovider.Result
	errs    map[string]error
	delays  map[string]time.Duration
	ran     []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		results: make(map[string]toolprovider.Result),
		errs:    make(map[string]error),
		delays:  make(map[string]time.Duration),
	}
}

func (f *fakeRunner) Execute(ctx context.Context, tool string, _ json.RawMessage, _ string) (toolprovider.Result, error) {
	f.mu.Lock()
	delay := f.delays[tool]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return toolprovider.Result{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = append(f.ran, tool)
	if err := f.errs[tool]; err != nil {
		return toolprovider.Result{}, err
	}
	if r, ok := f.results[tool]; ok {
		return r, nil
	}
	return toolprovider.Result{Success: true, Value: tool + " ok"}, nil
}

func (f *fakeRunner) executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ran...)
}

// flakyStore fails snapshot writes when putErr is set.
type flakyStore struct {
	*store.Memory
	putErr error
}

func (f *flakyStore) PutSnapshot(ctx context.Context, id string, blob []byte) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.Memory.PutSnapshot(ctx, id, blob)
}

func assistantCalls(calls ...model.ToolCall) model.Message {
	return model.Message{Role: model.RoleAssistant, ToolCalls: calls}
}

func assistantText(text string) model.Message {
	return model.Message{Role: model.RoleAssistant, Content: text}
}

type harness struct {
	llm      *scriptedLLM
	checker  *fakeChecker
	runner   *fakeRunner
	store    *flakyStore
	manager  *Manager
	snapshot int
}

func newHarness(responses ...model.Message) *harness {
	return newHarnessConfig(Config{}, responses...)
}

func newHarnessConfig(cfg Config, responses ...model.Message) *harness {
	h := &harness{
		llm:     &scriptedLLM{responses: responses},
		checker: newFakeChecker(),
		runner:  newFakeRunner(),
		store:   &flakyStore{Memory: store.NewMemory(0)},
	}
	log := logger.NewNop()
	h.manager = NewManager(
		NewTurnController(h.llm, nil, 0),
		h.checker,
		NewExecutor(h.runner, 4, log),
		h.store,
		cfg,
		log,
	)
	h.manager.newID = func() string {
		h.snapshot++
		return fmt.Sprintf("S%d", h.snapshot)
	}
	return h
}

type toolRunnerFunc func(ctx context.Context, tool string, args []byte, userID string) (toolprovider.Result, error)

func (f toolRunnerFunc) Execute(ctx context.Context, tool string, args json.RawMessage, userID string) (toolprovider.Result, error) {
	return f(ctx, tool, args, userID)
}
