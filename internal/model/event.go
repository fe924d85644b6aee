package model

import (
	"time"
)

// EventType represents the type of conversation event.
type EventType string

const (
	EventTypeDone      EventType = "done"
	EventTypeSuspended EventType = "suspended"
	EventTypeResumed   EventType = "resumed"
	EventTypeError     EventType = "error"
)

// ConversationEvent is an audit record of one engine invocation.
type ConversationEvent struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Type       EventType      `json:"type"`
	SnapshotID string         `json:"snapshot_id,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	Sequence   uint64         `json:"sequence,omitempty"`
}
