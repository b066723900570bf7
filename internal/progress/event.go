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
	StageRunStart    Stage = "RUN_START"
	StageRunDone     Stage = "RUN_DONE"
	StageRunError    Stage = "RUN_ERROR"
	StageProbeRetry  Stage = "PROBE_RETRY"
	StageProbeFailed Stage = "PROBE_FAILED"
	StageProbeDone   Stage = "PROBE_DONE"
)

// Outcome describes how a run ended.
type Outcome string

// Run outcomes reported with StageRunDone.
const (
	OutcomeCompleted    Outcome = "completed"
	OutcomeTimedOut     Outcome = "timed_out"
	OutcomeDisconnected Outcome = "disconnected"
)

// Event captures a single milestone of a link-check run.
type Event struct {
	// RunID identifies the run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Site scopes probe events to a host label.
	Site string
	// URL is the caller-supplied link for probe events.
	URL string
	// LinkStatus is the link status string (ok, broken, ...).
	LinkStatus string
	StatusCode int
	// Attempt is the 1-based probe attempt for retry and failure events.
	Attempt int
	// Total and Checked carry run counters.
	Total   int
	Checked int
	Outcome Outcome
	// Dur is probe latency for PROBE_DONE and wall time for RUN_DONE.
	Dur time.Duration
	// Note holds low-volume context such as error text.
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
	case StageRunStart, StageRunError:
	case StageRunDone:
		if e.Outcome == "" {
			return errors.New("run done requires outcome")
		}
	case StageProbeRetry, StageProbeFailed:
		if e.Site == "" {
			return fmt.Errorf("%s requires site", e.Stage)
		}
		if e.Attempt <= 0 {
			return fmt.Errorf("%s requires attempt", e.Stage)
		}
	case StageProbeDone:
		if e.Site == "" {
			return errors.New("probe done requires site")
		}
		if e.LinkStatus == "" {
			return errors.New("probe done requires link status")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
