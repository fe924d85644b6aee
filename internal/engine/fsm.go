package engine

import "fmt"

// Phase is a state of a conversation within the engine.
type Phase int

const (
	PhaseRunning Phase = iota
	PhaseAuthPending
	PhaseSuspended
	PhaseResuming
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "running"
	case PhaseAuthPending:
		return "auth_pending"
	case PhaseSuspended:
		return "suspended"
	case PhaseResuming:
		return "resuming"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Signal is an event that moves a conversation between phases.
type Signal int

const (
	// SignalFinal: the model answered without requesting tools.
	SignalFinal Signal = iota
	// SignalToolsApproved: every requested tool is authorized.
	SignalToolsApproved
	// SignalAuthRequired: at least one requested tool needs consent.
	SignalAuthRequired
	// SignalSnapshotSaved: the conversation was persisted.
	SignalSnapshotSaved
	// SignalResume: an external resume request arrived.
	SignalResume
	// SignalReconciled: unanswered tool calls were repaired.
	SignalReconciled
)

func (s Signal) String() string {
	switch s {
	case SignalFinal:
		return "final"
	case SignalToolsApproved:
		return "tools_approved"
	case SignalAuthRequired:
		return "auth_required"
	case SignalSnapshotSaved:
		return "snapshot_saved"
	case SignalResume:
		return "resume"
	case SignalReconciled:
		return "reconciled"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// Next returns the phase that follows p on signal s.
func Next(p Phase, s Signal) (Phase, error) {
	switch {
	case p == PhaseRunning && s == SignalFinal:
		return PhaseDone, nil
	case p == PhaseRunning && s == SignalToolsApproved:
		return PhaseRunning, nil
	case p == PhaseRunning && s == SignalAuthRequired:
		return PhaseAuthPending, nil
	case p == PhaseAuthPending && s == SignalSnapshotSaved:
		return PhaseSuspended, nil
	case p == PhaseSuspended && s == SignalResume:
		return PhaseResuming, nil
	case p == PhaseResuming && s == SignalReconciled:
		return PhaseRunning, nil
	}
	return p, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, p, s)
}
