package engine

import (
	"errors"
	"testing"
)

func TestNext(t *testing.T) {
	valid := []struct {
		from Phase
		sig  Signal
		to   Phase
	}{
		{PhaseRunning, SignalFinal, PhaseDone},
		{PhaseRunning, SignalToolsApproved, PhaseRunning},
		{PhaseRunning, SignalAuthRequired, PhaseAuthPending},
		{PhaseAuthPending, SignalSnapshotSaved, PhaseSuspended},
		{PhaseSuspended, SignalResume, PhaseResuming},
		{PhaseResuming, SignalReconciled, PhaseRunning},
	}
	for _, tt := range valid {
		t.Run(tt.from.String()+"/"+tt.sig.String(), func(t *testing.T) {
			got, err := Next(tt.from, tt.sig)
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if got != tt.to {
				t.Errorf("Next(%s, %s) = %s, want %s", tt.from, tt.sig, got, tt.to)
			}
		})
	}
}

func TestNextRejectsInvalid(t *testing.T) {
	invalid := []struct {
		from Phase
		sig  Signal
	}{
		{PhaseDone, SignalFinal},
		{PhaseDone, SignalResume},
		{PhaseRunning, SignalResume},
		{PhaseRunning, SignalSnapshotSaved},
		{PhaseAuthPending, SignalToolsApproved},
		{PhaseSuspended, SignalFinal},
		{PhaseResuming, SignalToolsApproved},
	}
	for _, tt := range invalid {
		got, err := Next(tt.from, tt.sig)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Next(%s, %s) err = %v, want ErrInvalidTransition", tt.from, tt.sig, err)
		}
		if got != tt.from {
			t.Errorf("Next(%s, %s) moved to %s on error", tt.from, tt.sig, got)
		}
	}
}

func TestFullCycle(t *testing.T) {
	p := PhaseRunning
	for _, s := range []Signal{SignalAuthRequired, SignalSnapshotSaved, SignalResume, SignalReconciled, SignalToolsApproved, SignalFinal} {
		var err error
		if p, err = Next(p, s); err != nil {
			t.Fatalf("Next(%s): %v", s, err)
		}
	}
	if p != PhaseDone {
		t.Errorf("ended in %s, want done", p)
	}
}
