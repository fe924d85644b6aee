package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/capitalize-ai/assistant/internal/model"
)

const snapshotVersion = 1

type snapshotEnvelope struct {
	Version   int                      `json:"version"`
	ID        string                   `json:"id"`
	CreatedAt time.Time                `json:"created_at"`
	State     *model.ConversationState `json:"state"`
}

// EncodeSnapshot serializes state for storage under id.
func EncodeSnapshot(id string, state *model.ConversationState, createdAt time.Time) ([]byte, error) {
	return json.Marshal(snapshotEnvelope{
		Version:   snapshotVersion,
		ID:        id,
		CreatedAt: createdAt.UTC(),
		State:     state,
	})
}

// DecodeSnapshot parses a blob written by EncodeSnapshot.
func DecodeSnapshot(blob []byte) (*model.ConversationState, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("%w: empty blob", ErrSnapshotCorrupt)
	}
	var env snapshotEnvelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotCorrupt, err)
	}
	if env.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrSnapshotCorrupt, env.Version)
	}
	if env.State == nil {
		return nil, fmt.Errorf("%w: missing state", ErrSnapshotCorrupt)
	}
	if env.State.PendingAuthorizations == nil {
		env.State.PendingAuthorizations = make(map[string]model.PendingAuthorization)
	}
	return env.State, nil
}
