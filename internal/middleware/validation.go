package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ValidateMessageContent validates message text.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("text cannot be empty")
	}
	if len(content) > 100000 {
		return errors.New("text exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("text must be valid UTF-8")
	}
	return nil
}

// ValidateSnapshotID validates a snapshot id. Empty ids are allowed and
// mean the transcript should be used.
func ValidateSnapshotID(id string) error {
	if id == "" {
		return nil
	}
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid snapshot ID format")
	}
	return nil
}

// ValidateEventID validates an event id.
func ValidateEventID(id string) error {
	if len(id) > 256 {
		return errors.New("event ID exceeds maximum length")
	}
	return nil
}

// ValidateModelName validates a model name.
func ValidateModelName(name string) error {
	if name == "" {
		return errors.New("model cannot be empty")
	}
	if len(name) > 128 {
		return errors.New("model exceeds maximum length")
	}
	return nil
}
