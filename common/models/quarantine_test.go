package models

import (
	"errors"
	"testing"
)

func TestQuarantineTransitions_HappyPath(t *testing.T) {
	r := &QuarantineRecord{State: QuarantinePending}

	for _, next := range []QuarantineState{QuarantineScanning, QuarantineClean, QuarantinePromoted} {
		if err := r.TransitionTo(next); err != nil {
			t.Fatalf("transition to %s failed: %v", next, err)
		}
	}
	if !r.Terminal() {
		t.Error("promoted is terminal")
	}
}

func TestQuarantineTransitions_Illegal(t *testing.T) {
	cases := []struct {
		from QuarantineState
		to   QuarantineState
	}{
		{QuarantinePending, QuarantineClean},
		{QuarantinePending, QuarantinePromoted},
		{QuarantineScanning, QuarantinePromoted},
		{QuarantineInfected, QuarantineClean},
		{QuarantineInfected, QuarantinePromoted},
		{QuarantinePromoted, QuarantineScanning},
	}

	for _, c := range cases {
		r := &QuarantineRecord{State: c.from}
		err := r.TransitionTo(c.to)
		if err == nil {
			t.Errorf("transition %s -> %s must be rejected", c.from, c.to)
			continue
		}
		var illegal *IllegalTransitionError
		if !errors.As(err, &illegal) {
			t.Errorf("expected IllegalTransitionError, got %T", err)
		}
		if r.State != c.from {
			t.Errorf("rejected transition must not change state, got %s", r.State)
		}
	}
}

func TestQuarantineTransitions_FailedFromPendingAndScanning(t *testing.T) {
	for _, from := range []QuarantineState{QuarantinePending, QuarantineScanning} {
		r := &QuarantineRecord{State: from}
		if err := r.TransitionTo(QuarantineFailed); err != nil {
			t.Errorf("transition %s -> failed must be legal: %v", from, err)
		}
	}
}
