// Package engine drives a conversation through model turns, tool
// authorization, suspension, and resumption.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/assistant/internal/model"
	"github.com/capitalize-ai/assistant/internal/store"
	"github.com/capitalize-ai/assistant/pkg/logger"
	"github.com/capitalize-ai/assistant/pkg/metrics"
)

// DefaultMaxSteps bounds model turns per invocation.
const DefaultMaxSteps = 10

// Turner runs one model turn.
type Turner interface {
	RunTurn(ctx context.Context, state *model.ConversationState) (AssistantOutcome, error)
}

// ToolExecutor runs approved calls and returns one result per call.
type ToolExecutor interface {
	Execute(ctx context.Context, calls []model.ToolCall, userID string) []model.Message
}

// Config holds engine settings.
type Config struct {
	MaxSteps       int
	DeleteOnResume bool
}

// ResumeInput identifies the conversation to resume.
type ResumeInput struct {
	UserID     string
	SnapshotID string

	// Fallback is used when the snapshot cannot be loaded.
	Fallback *model.ConversationState

	// Prompt is appended as a user message when the resumed state has no
	// interrupted tool calls to finish.
	Prompt string
}

// Manager is the conversation state machine.
type Manager struct {
	turn      Turner
	checker   AuthChecker
	executor  ToolExecutor
	snapshots store.Snapshots
	cfg       Config
	logger    *logger.Logger
	tracer    trace.Tracer
	newID     func() string
	now       func() time.Time
}

// NewManager wires the engine's collaborators.
func NewManager(turn Turner, checker AuthChecker, executor ToolExecutor, snapshots store.Snapshots, cfg Config, log *logger.Logger) *Manager {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	return &Manager{
		turn:      turn,
		checker:   checker,
		executor:  executor,
		snapshots: snapshots,
		cfg:       cfg,
		logger:    log.Named("engine"),
		tracer:    otel.Tracer("github.com/capitalize-ai/assistant/internal/engine"),
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// Run drives state until the model answers or a tool needs authorization.
func (m *Manager) Run(ctx context.Context, state *model.ConversationState) (Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "engine.run", trace.WithAttributes(
		attribute.String("user_id", state.UserID),
	))
	defer span.End()

	out, err := m.drive(ctx, state)
	recordOutcome(span, out, err)
	return out, err
}

// Resume continues a suspended conversation. Authorization is assumed
// to have been granted. Interrupted tool calls are repaired and executed
// before the model is consulted again. A snapshot is resumed at most
// once; later attempts fail with ErrSnapshotConsumed.
func (m *Manager) Resume(ctx context.Context, in ResumeInput) (Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "engine.resume", trace.WithAttributes(
		attribute.String("user_id", in.UserID),
		attribute.String("snapshot_id", in.SnapshotID),
	))
	defer span.End()

	out, err := m.resume(ctx, in)
	recordOutcome(span, out, err)
	return out, err
}

func (m *Manager) resume(ctx context.Context, in ResumeInput) (Outcome, error) {
	state, source, err := m.load(ctx, in)
	if err != nil {
		return nil, err
	}
	if source == "snapshot" {
		if err := m.claim(ctx, in.SnapshotID); err != nil {
			return nil, err
		}
	}
	metrics.ResumesTotal.WithLabelValues(source).Inc()

	phase := PhaseSuspended
	if err := m.transition(&phase, SignalResume); err != nil {
		return nil, err
	}

	ClearPending(state)
	msgs, repaired := Reconcile(state.Messages)
	state.Messages = msgs
	if len(repaired) > 0 {
		metrics.ReconciledResultsTotal.Add(float64(len(repaired)))
		m.logger.Warn("reconciled interrupted tool calls",
			zap.String("user_id", state.UserID),
			zap.Int("count", len(repaired)),
		)
	}
	if err := m.transition(&phase, SignalReconciled); err != nil {
		return nil, err
	}

	m.logger.Info("conversation resumed",
		zap.String("user_id", state.UserID),
		zap.String("snapshot_id", in.SnapshotID),
		zap.String("source", source),
	)

	if len(repaired) > 0 {
		results := m.execute(ctx, repaired, state.UserID)
		state.Messages = replaceResults(state.Messages, results)
		state.ApprovedCalls = nil
	} else if in.Prompt != "" && !endsWithUserText(state, in.Prompt) {
		state.Append(model.NewUserMessage(in.Prompt))
	}

	if source == "snapshot" && m.cfg.DeleteOnResume {
		if err := m.snapshots.DeleteSnapshot(ctx, in.SnapshotID); err != nil {
			m.logger.Warn("failed to delete resumed snapshot",
				zap.String("snapshot_id", in.SnapshotID),
				zap.Error(err),
			)
		}
	}

	return m.drive(ctx, state)
}

// claim marks id as resumed. The marker is write-once, so only the first
// resume of a snapshot executes its interrupted tool calls.
func (m *Manager) claim(ctx context.Context, id string) error {
	marker := []byte(m.now().UTC().Format(time.RFC3339Nano))
	err := m.snapshots.PutSnapshot(ctx, store.ConsumedKey(id), marker)
	if errors.Is(err, store.ErrExists) {
		m.logger.Info("snapshot already resumed", zap.String("snapshot_id", id))
		return ErrSnapshotConsumed
	}
	if err != nil {
		return fmt.Errorf("failed to mark snapshot %s resumed: %w", id, err)
	}
	return nil
}

// load returns the state to resume and where it came from.
func (m *Manager) load(ctx context.Context, in ResumeInput) (*model.ConversationState, string, error) {
	var snapErr error
	if in.SnapshotID != "" {
		state, err := m.loadSnapshot(ctx, in.SnapshotID)
		if err == nil && in.UserID != "" && state.UserID != in.UserID {
			err = fmt.Errorf("%w: snapshot belongs to another user", store.ErrNotFound)
		}
		if err == nil {
			return state, "snapshot", nil
		}
		snapErr = err
		m.logger.Warn("snapshot unavailable, falling back to transcript",
			zap.String("snapshot_id", in.SnapshotID),
			zap.Error(err),
		)
	}

	if in.Fallback != nil && len(in.Fallback.Messages) > 0 {
		state := in.Fallback.Clone()
		if state.UserID == "" {
			state.UserID = in.UserID
		}
		return state, "transcript", nil
	}

	if snapErr != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrNoResumeSource, snapErr)
	}
	return nil, "", ErrNoResumeSource
}

func (m *Manager) loadSnapshot(ctx context.Context, id string) (*model.ConversationState, error) {
	blob, err := m.snapshots.GetSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	return DecodeSnapshot(blob)
}

// drive repeats Step until it yields something other than Continue.
func (m *Manager) drive(ctx context.Context, state *model.ConversationState) (Outcome, error) {
	for i := 0; i < m.cfg.MaxSteps; i++ {
		out, err := m.Step(ctx, state)
		if err != nil {
			return nil, err
		}
		c, ok := out.(Continue)
		if !ok {
			return out, nil
		}
		state = c.State
	}
	return nil, fmt.Errorf("%w: %d steps", ErrTurnLimit, m.cfg.MaxSteps)
}

// Step runs one model turn from the running phase. Approved tool calls
// are executed and yield Continue; pending authorizations yield Suspend.
func (m *Manager) Step(ctx context.Context, state *model.ConversationState) (Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "engine.turn")
	defer span.End()

	phase := PhaseRunning
	res, err := m.turn.RunTurn(ctx, state)
	if err != nil {
		return nil, err
	}

	switch r := res.(type) {
	case Final:
		if err := m.transition(&phase, SignalFinal); err != nil {
			return nil, err
		}
		return Done{Content: r.Content, State: state}, nil

	case ToolCallsRequested:
		decision, err := Gate(ctx, r.Calls, state.UserID, m.checker)
		if err != nil {
			return nil, err
		}
		if len(decision.Pending) > 0 {
			if err := m.transition(&phase, SignalAuthRequired); err != nil {
				return nil, err
			}
			return m.suspend(ctx, state, decision, &phase)
		}
		if err := m.transition(&phase, SignalToolsApproved); err != nil {
			return nil, err
		}
		state.Append(m.execute(ctx, decision.Approved, state.UserID)...)
		return Continue{State: state}, nil
	}

	return nil, fmt.Errorf("unexpected turn result %T", res)
}

func (m *Manager) suspend(ctx context.Context, state *model.ConversationState, decision AuthDecision, phase *Phase) (Outcome, error) {
	state.PendingAuthorizations = make(map[string]model.PendingAuthorization, len(decision.Pending))
	state.PendingOrder = nil
	for _, p := range decision.Pending {
		state.PendingAuthorizations[p.Name] = model.PendingAuthorization{URL: p.URL}
		state.PendingOrder = append(state.PendingOrder, p.Name)
	}
	state.ApprovedCalls = decision.Approved

	id := m.newID()
	blob, err := EncodeSnapshot(id, state, m.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotPersist, err)
	}
	if err := m.snapshots.PutSnapshot(ctx, id, blob); err != nil {
		m.logger.Error("failed to persist snapshot",
			zap.String("user_id", state.UserID),
			zap.String("snapshot_id", id),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrSnapshotPersist, err)
	}
	if err := m.transition(phase, SignalSnapshotSaved); err != nil {
		return nil, err
	}

	metrics.SuspensionsTotal.Inc()
	m.logger.Info("conversation suspended for authorization",
		zap.String("user_id", state.UserID),
		zap.String("snapshot_id", id),
		zap.Strings("pending", state.PendingOrder),
	)

	return Suspend{
		Pending:    decision.Pending,
		SnapshotID: id,
		Message:    AuthMessage(decision.Pending),
	}, nil
}

func (m *Manager) execute(ctx context.Context, calls []model.ToolCall, userID string) []model.Message {
	ctx, span := m.tracer.Start(ctx, "engine.execute", trace.WithAttributes(
		attribute.Int("tool_calls", len(calls)),
	))
	defer span.End()
	return m.executor.Execute(ctx, calls, userID)
}

func (m *Manager) transition(p *Phase, s Signal) error {
	next, err := Next(*p, s)
	if err != nil {
		return err
	}
	m.logger.Debug("transition",
		zap.Stringer("from", *p),
		zap.Stringer("signal", s),
		zap.Stringer("to", next),
	)
	metrics.TurnStepsTotal.WithLabelValues(next.String()).Inc()
	*p = next
	return nil
}

func endsWithUserText(state *model.ConversationState, text string) bool {
	last, ok := state.LastMessage()
	return ok && last.Role == model.RoleUser && last.Content == text
}

func recordOutcome(span trace.Span, out Outcome, err error) {
	label := "error"
	switch out.(type) {
	case Done:
		label = "done"
	case Suspend:
		label = "suspended"
	}
	metrics.TurnsTotal.WithLabelValues(label).Inc()
	span.SetAttributes(attribute.String("outcome", label))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrTurnLimit) {
			span.SetAttributes(attribute.Bool("turn_limit", true))
		}
	}
}
