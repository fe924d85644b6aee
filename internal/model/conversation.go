// Package model defines data structures for the assistant.
package model

import (
	"time"
)

// PendingAuthorization is the authorization status of one tool provider.
// A cleared entry carries no URL.
type PendingAuthorization struct {
	URL     string `json:"url,omitempty"`
	Cleared bool   `json:"cleared"`
}

// ConversationState is the message history of one turn plus the
// authorization bookkeeping needed to suspend and resume it.
type ConversationState struct {
	UserID   string    `json:"user_id"`
	Provider string    `json:"provider,omitempty"`
	Model    string    `json:"model,omitempty"`
	Messages []Message `json:"messages"`

	// PendingAuthorizations is keyed by authorization provider (or tool
	// name when the provider is unknown).
	PendingAuthorizations map[string]PendingAuthorization `json:"pending_authorizations,omitempty"`

	// PendingOrder keeps first-seen order of PendingAuthorizations keys.
	PendingOrder []string `json:"pending_order,omitempty"`

	// ApprovedCalls are the calls cleared to run at the moment of suspension.
	ApprovedCalls []ToolCall `json:"approved_calls,omitempty"`
}

// Clone returns a deep copy of s that shares no slices or maps with it.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	out := &ConversationState{
		UserID:   s.UserID,
		Provider: s.Provider,
		Model:    s.Model,
	}
	if s.Messages != nil {
		out.Messages = make([]Message, len(s.Messages))
		for i, m := range s.Messages {
			if m.ToolCalls != nil {
				m.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
			}
			out.Messages[i] = m
		}
	}
	if s.PendingAuthorizations != nil {
		out.PendingAuthorizations = make(map[string]PendingAuthorization, len(s.PendingAuthorizations))
		for k, v := range s.PendingAuthorizations {
			out.PendingAuthorizations[k] = v
		}
	}
	if s.PendingOrder != nil {
		out.PendingOrder = append([]string(nil), s.PendingOrder...)
	}
	if s.ApprovedCalls != nil {
		out.ApprovedCalls = append([]ToolCall(nil), s.ApprovedCalls...)
	}
	return out
}

// Append adds messages to the end of the history.
func (s *ConversationState) Append(msgs ...Message) {
	s.Messages = append(s.Messages, msgs...)
}

// LastMessage returns the most recent message, or false when empty.
func (s *ConversationState) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// UserProfile holds per-user settings.
type UserProfile struct {
	UserID    string    `json:"user_id"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InboundEvent is a message delivered by a transport.
type InboundEvent struct {
	EventID string `json:"event_id"`
	UserID  string `json:"user_id"`
	Text    string `json:"text"`

	// Locator identifies the conversation on the transport side
	// (channel and thread for Slack).
	Locator Locator `json:"locator,omitempty"`

	// Transcript is prior conversation text, oldest first.
	Transcript []Message `json:"transcript,omitempty"`
}

// Locator addresses a conversation within a transport.
type Locator struct {
	ChannelID string `json:"channel_id,omitempty"`
	ThreadTS  string `json:"thread_ts,omitempty"`
}

// ResumeRequest asks to continue a suspended conversation.
type ResumeRequest struct {
	EventID    string    `json:"event_id,omitempty"`
	UserID     string    `json:"user_id"`
	SnapshotID string    `json:"snapshot_id,omitempty"`
	Message    string    `json:"message,omitempty"`
	Locator    Locator   `json:"locator,omitempty"`
	Transcript []Message `json:"transcript,omitempty"`
}

// UpdateProfileRequest changes a user's model preference.
type UpdateProfileRequest struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model"`
}

// ModelInfo describes one selectable model.
type ModelInfo struct {
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
	Label    string `json:"label" yaml:"label"`
}

// ToolInfo describes one tool in the catalog.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Toolkit     string         `json:"toolkit,omitempty"`
}
