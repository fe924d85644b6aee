package service

import (
	"context"

	"github.com/capitalize-ai/assistant/internal/model"
)

// EventPublisher records conversation events for audit.
type EventPublisher interface {
	Publish(ctx context.Context, event model.ConversationEvent) error
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(context.Context, model.ConversationEvent) error { return nil }
