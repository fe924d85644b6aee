package engine

import "errors"

var (
	// ErrSnapshotPersist means a suspension could not be saved. The user
	// must not be asked to authorize when this happens.
	ErrSnapshotPersist = errors.New("failed to persist conversation snapshot")

	// ErrSnapshotCorrupt means a stored snapshot could not be decoded.
	ErrSnapshotCorrupt = errors.New("conversation snapshot is corrupt")

	// ErrNoResumeSource means neither a snapshot nor a transcript was
	// available to resume from.
	ErrNoResumeSource = errors.New("no snapshot or transcript to resume from")

	// ErrSnapshotConsumed means the snapshot has already been resumed.
	ErrSnapshotConsumed = errors.New("conversation snapshot already resumed")

	// ErrInvalidTransition is returned by Next for a signal the phase
	// does not accept.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrTurnLimit means the model kept requesting tools past the
	// configured number of steps.
	ErrTurnLimit = errors.New("turn step limit exceeded")
)
