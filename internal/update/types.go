package update

import (
	"time"
)

// Target selects which image an update request writes.
type Target string

const (
	TargetFirmware Target = "firmware"
	TargetDatabase Target = "database"
)

// Valid reports whether t names a known target.
func (t Target) Valid() bool {
	return t == TargetFirmware || t == TargetDatabase
}

// State is a step of the update state machine.
type State int

const (
	StateIdle State = iota
	StateSourcingPayload
	StateConnecting
	StateChecking
	StateUpdating
	StateTerminal
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSourcingPayload:
		return "sourcing-payload"
	case StateConnecting:
		return "connecting"
	case StateChecking:
		return "checking"
	case StateUpdating:
		return "updating"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Outcome is how a request ended.
type Outcome int

const (
	// OutcomePending means the payload was sourced but no device was
	// present, so nothing was sent.
	OutcomePending Outcome = iota
	OutcomeSkipped
	OutcomeSucceeded
	OutcomeFailed
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SkipAlreadyLatest is the skip reason when the device already runs the
// release version.
const SkipAlreadyLatest = "already-latest"

// Request describes one update.
type Request struct {
	ID     string
	Target Target

	// Local marks a caller-supplied Payload. Local updates bypass the
	// already-latest check.
	Local   bool
	Payload []byte

	// DevicePresent is the hotplug state when the request was accepted.
	DevicePresent bool
}

// Result is the terminal report of a request.
type Result struct {
	RequestID string
	Target    Target
	Local     bool
	State     State
	Outcome   Outcome

	// Kind and Err are set when Outcome is OutcomeFailed.
	Kind       ErrorKind
	Err        error
	SkipReason string

	PayloadVersion string
	PayloadSize    int
	Transferred    int
	DeviceVersion  string

	// Verified is set after a database transfer: true when the device
	// reports the expected database version.
	Verified *bool

	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the request ran.
func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ErrorMessage returns the error text, or "" on success.
func (r Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
