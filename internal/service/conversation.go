// Package service turns transport events into engine invocations and
// engine outcomes into replies.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/assistant/internal/dedup"
	"github.com/capitalize-ai/assistant/internal/engine"
	"github.com/capitalize-ai/assistant/internal/model"
	"github.com/capitalize-ai/assistant/internal/redact"
	"github.com/capitalize-ai/assistant/pkg/logger"
	"github.com/capitalize-ai/assistant/pkg/metrics"
)

// User-facing failure texts.
const (
	FailureMessage     = "An unexpected error occurred while processing your request."
	PersistFailMessage = "Authorization is required, but the conversation could not be saved. Please try again."
)

// Status is the kind of reply.
type Status string

const (
	StatusDone         Status = "done"
	StatusAuthRequired Status = "auth_required"
	StatusDuplicate    Status = "duplicate"
	StatusFailed       Status = "failed"
)

// Reply is what a transport shows the user.
type Reply struct {
	Status     Status               `json:"status"`
	Content    string               `json:"content,omitempty"`
	SnapshotID string               `json:"snapshot_id,omitempty"`
	Pending    []engine.PendingTool `json:"pending,omitempty"`
}

// Engine runs and resumes conversations.
type Engine interface {
	Run(ctx context.Context, state *model.ConversationState) (engine.Outcome, error)
	Resume(ctx context.Context, in engine.ResumeInput) (engine.Outcome, error)
}

// Options tunes the conversation service.
type Options struct {
	Tools               []model.ToolInfo
	ShortenDescriptions bool
	SerializeUserTurns  bool
	Redactor            *redact.Redactor
}

// ConversationService handles inbound messages and resume requests.
type ConversationService struct {
	engine   Engine
	profiles *ProfileService
	dedup    *dedup.Deduplicator
	events   EventPublisher
	locks    *keyedMutex
	opts     Options
	logger   *logger.Logger
	now      func() time.Time
}

// NewConversationService creates a conversation service. A nil events
// publisher discards events.
func NewConversationService(eng Engine, profiles *ProfileService, d *dedup.Deduplicator, events EventPublisher, opts Options, log *logger.Logger) *ConversationService {
	if events == nil {
		events = NopPublisher{}
	}
	return &ConversationService{
		engine:   eng,
		profiles: profiles,
		dedup:    d,
		events:   events,
		locks:    newKeyedMutex(),
		opts:     opts,
		logger:   log.Named("conversation"),
		now:      time.Now,
	}
}

// HandleEvent answers a new user message. Re-delivered events get a
// StatusDuplicate reply and are not processed. On failure the returned
// Reply still carries text fit to show the user.
func (s *ConversationService) HandleEvent(ctx context.Context, ev model.InboundEvent) (Reply, error) {
	if !s.dedup.Observe(dedupKey(ev.UserID, ev.EventID)) {
		metrics.DedupRejectionsTotal.Inc()
		s.logger.Debug("duplicate event skipped", zap.String("event_id", ev.EventID))
		return Reply{Status: StatusDuplicate}, nil
	}

	unlock, err := s.lock(ctx, ev.UserID)
	if err != nil {
		return s.fail(ctx, ev.UserID, err)
	}
	defer unlock()

	profile, err := s.profiles.Get(ctx, ev.UserID)
	if err != nil {
		return s.fail(ctx, ev.UserID, err)
	}

	state := s.newState(profile, ev.Transcript)
	state.Append(model.NewUserMessage(ev.Text))

	log := s.logger.WithTurn(ev.UserID, ev.EventID)
	log.Debug("handling event", zap.Int("transcript", len(ev.Transcript)))

	out, err := s.engine.Run(ctx, state)
	if err != nil {
		return s.fail(ctx, ev.UserID, err)
	}
	return s.reply(ctx, ev.UserID, out), nil
}

// Resume continues a suspended conversation after the user authorized
// its tools. The transcript is used when the snapshot is unavailable. A
// snapshot that was already resumed gets a StatusDuplicate reply.
func (s *ConversationService) Resume(ctx context.Context, req model.ResumeRequest) (Reply, error) {
	if !s.dedup.Observe(dedupKey(req.UserID, req.EventID)) {
		metrics.DedupRejectionsTotal.Inc()
		return Reply{Status: StatusDuplicate}, nil
	}

	unlock, err := s.lock(ctx, req.UserID)
	if err != nil {
		return s.fail(ctx, req.UserID, err)
	}
	defer unlock()

	profile, err := s.profiles.Get(ctx, req.UserID)
	if err != nil {
		return s.fail(ctx, req.UserID, err)
	}

	var fallback *model.ConversationState
	if len(req.Transcript) > 0 {
		fallback = s.newState(profile, req.Transcript)
	}

	s.logger.WithTurn(req.UserID, req.EventID).Debug("resuming conversation",
		zap.String("snapshot_id", req.SnapshotID),
		zap.Int("transcript", len(req.Transcript)),
	)

	out, err := s.engine.Resume(ctx, engine.ResumeInput{
		UserID:     req.UserID,
		SnapshotID: req.SnapshotID,
		Fallback:   fallback,
		Prompt:     req.Message,
	})
	if errors.Is(err, engine.ErrSnapshotConsumed) {
		metrics.DedupRejectionsTotal.Inc()
		return Reply{Status: StatusDuplicate}, nil
	}
	if err != nil {
		return s.fail(ctx, req.UserID, err)
	}

	s.publish(ctx, model.ConversationEvent{
		UserID:     req.UserID,
		Type:       model.EventTypeResumed,
		SnapshotID: req.SnapshotID,
	})
	return s.reply(ctx, req.UserID, out), nil
}

// dedupKey scopes a transport event id to its user. An empty id is never
// deduplicated.
func dedupKey(userID, eventID string) string {
	if eventID == "" {
		return ""
	}
	return userID + ":" + eventID
}

func (s *ConversationService) lock(ctx context.Context, userID string) (func(), error) {
	if !s.opts.SerializeUserTurns {
		return func() {}, nil
	}
	return s.locks.Lock(ctx, userID)
}

func (s *ConversationService) newState(profile *model.UserProfile, transcript []model.Message) *model.ConversationState {
	state := &model.ConversationState{
		UserID:   profile.UserID,
		Provider: profile.Provider,
		Model:    profile.Model,
	}
	state.Append(model.NewSystemMessage(SystemPrompt(s.opts.Tools, s.opts.ShortenDescriptions, s.now())))
	state.Append(transcript...)
	return state
}

func (s *ConversationService) reply(ctx context.Context, userID string, out engine.Outcome) Reply {
	switch o := out.(type) {
	case engine.Done:
		s.publish(ctx, model.ConversationEvent{UserID: userID, Type: model.EventTypeDone})
		return Reply{Status: StatusDone, Content: s.opts.Redactor.Redact(o.Content)}

	case engine.Suspend:
		names := make([]string, len(o.Pending))
		for i, p := range o.Pending {
			names[i] = p.Name
		}
		s.publish(ctx, model.ConversationEvent{
			UserID:     userID,
			Type:       model.EventTypeSuspended,
			SnapshotID: o.SnapshotID,
			Metadata:   map[string]any{"pending": names},
		})
		return Reply{
			Status:     StatusAuthRequired,
			Content:    o.Message,
			SnapshotID: o.SnapshotID,
			Pending:    o.Pending,
		}
	}

	s.logger.Error("unexpected engine outcome", zap.String("user_id", userID), zap.Any("outcome", out))
	return Reply{Status: StatusFailed, Content: FailureMessage}
}

func (s *ConversationService) fail(ctx context.Context, userID string, err error) (Reply, error) {
	content := FailureMessage
	if errors.Is(err, engine.ErrSnapshotPersist) {
		content = PersistFailMessage
	}

	s.logger.Error("conversation failed", zap.String("user_id", userID), zap.Error(err))
	s.publish(ctx, model.ConversationEvent{
		UserID: userID,
		Type:   model.EventTypeError,
		Reason: err.Error(),
	})
	return Reply{Status: StatusFailed, Content: content}, err
}

func (s *ConversationService) publish(ctx context.Context, event model.ConversationEvent) {
	event.ID = uuid.NewString()
	event.CreatedAt = s.now().UTC()
	if err := s.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("failed to publish conversation event",
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}
