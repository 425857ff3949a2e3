package prediction

import (
	"errors"
	"fmt"
)

var (
	// ErrDesync means a history no longer holds the tick a rollback needs.
	ErrDesync = errors.New("prediction: history lacks tick")
	// ErrSpawnMismatch means an authoritative spawn list could not be
	// reproduced locally.
	ErrSpawnMismatch = errors.New("prediction: spawn mismatch")
	// ErrMalformedFrame means a frame could not be parsed and was dropped.
	ErrMalformedFrame = errors.New("prediction: malformed frame")
	// ErrNotSimulating is returned by operations that are only legal while
	// a tick is being simulated.
	ErrNotSimulating   = errors.New("prediction: not simulating")
	ErrUnknownEntity   = errors.New("prediction: unknown entity")
	ErrDuplicateEntity = errors.New("prediction: duplicate entity")
	ErrNoDirectory     = errors.New("prediction: no object directory")
)

// DiagnosticKind classifies a degraded tick.
type DiagnosticKind int

const (
	DiagDesync DiagnosticKind = iota
	DiagStarvedInput
	DiagSpawnMismatch
	DiagMalformedFrame
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagDesync:
		return "desync"
	case DiagStarvedInput:
		return "starved_input"
	case DiagSpawnMismatch:
		return "spawn_mismatch"
	case DiagMalformedFrame:
		return "malformed_frame"
	default:
		return "unknown"
	}
}

// Diagnostic describes a failure the manager absorbed instead of stopping
// the tick loop.
type Diagnostic struct {
	Kind   DiagnosticKind
	Tick   uint64
	Entity ComponentID
	Player PlayerID
	Err    error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s at tick %d entity %s player %d: %v", d.Kind, d.Tick, d.Entity, d.Player, d.Err)
}
