// Package progress defines the event structures emitted during batch runs.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart       Stage = "RUN_START"
	StageRunDone        Stage = "RUN_DONE"
	StageEntityStart    Stage = "ENTITY_START"
	StageEntityProgress Stage = "ENTITY_PROGRESS"
	StageEntityDone     Stage = "ENTITY_DONE"
	StageEntityError    Stage = "ENTITY_ERROR"
)

// Event captures a single milestone of a batch run. Events for one entity are
// emitted sequentially by that entity's worker, so per-entity ordering is
// preserved end to end; events across entities interleave freely.
type Event struct {
	// RunID uniquely identifies a batch run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// EntityID scopes entity events; empty for run-level stages.
	EntityID string
	// Percent is the entity's completion in [0,100].
	Percent int
	// Entities is the roster size, set on run-level stages.
	Entities int
	// Processed/Skipped/Failed carry sync counters on terminal stages.
	Processed int
	Skipped   int
	Failed    int
	// Dur captures wall time for terminal stages.
	Dur time.Duration
	// Note holds a human-readable status or error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageEntityStart, StageEntityProgress, StageEntityDone, StageEntityError:
		if e.EntityID == "" {
			return fmt.Errorf("%s requires entity id", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Percent < 0 || e.Percent > 100 {
		return fmt.Errorf("percent %d out of range", e.Percent)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
