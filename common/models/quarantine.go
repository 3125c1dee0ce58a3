package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QuarantineState is the lifecycle state of a staged upload
type QuarantineState string

const (
	QuarantinePending  QuarantineState = "pending"
	QuarantineScanning QuarantineState = "scanning"
	QuarantineClean    QuarantineState = "clean"
	QuarantineInfected QuarantineState = "infected"
	QuarantineFailed   QuarantineState = "failed"
	QuarantinePromoted QuarantineState = "promoted"
)

// Legal predecessor map. A transition is only valid from the documented
// predecessor state; everything else is rejected, never coerced.
var quarantineTransitions = map[QuarantineState][]QuarantineState{
	QuarantineScanning: {QuarantinePending},
	QuarantineClean:    {QuarantineScanning},
	QuarantineInfected: {QuarantineScanning},
	QuarantineFailed:   {QuarantinePending, QuarantineScanning},
	QuarantinePromoted: {QuarantineClean},
}

// IllegalTransitionError signals a rejected quarantine state change.
type IllegalTransitionError struct {
	From QuarantineState
	To   QuarantineState
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal quarantine transition %s -> %s", e.From, e.To)
}

// QuarantineRecord tracks one staged artifact inside the quarantine root
type QuarantineRecord struct {
	// Unpredictable token; also derives the physical location
	Token uuid.UUID `json:"token"`

	// Path relative to the quarantine root
	PhysicalLocation string `json:"physical_location"`

	// Correlates the staged file with the originating request
	CorrelationID string `json:"correlation_id"`

	// Upload profile the client declared at stage-in
	DeclaredProfile string `json:"declared_profile"`

	State QuarantineState `json:"state"`

	CreatedAt time.Time `json:"created_at"`
}

// TransitionTo advances the record's state, rejecting illegal transitions.
func (r *QuarantineRecord) TransitionTo(next QuarantineState) error {
	for _, from := range quarantineTransitions[next] {
		if r.State == from {
			r.State = next
			return nil
		}
	}
	return &IllegalTransitionError{From: r.State, To: next}
}

// Terminal reports whether the record can never change state again.
func (r *QuarantineRecord) Terminal() bool {
	switch r.State {
	case QuarantineInfected, QuarantineFailed, QuarantinePromoted:
		return true
	}
	return false
}
