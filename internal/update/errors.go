package update

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/shell-updater/internal/release"
	"github.com/nerrad567/shell-updater/internal/shell"
)

// ErrUpdateInProgress is returned when a request arrives while another
// update is running.
var ErrUpdateInProgress = errors.New("update: another update is in progress")

// ErrorKind classifies why an update request failed.
type ErrorKind int

const (
	// Unclassified is any failure not covered by another kind.
	Unclassified ErrorKind = iota
	// FetchUnavailable means release metadata or the payload download failed.
	FetchUnavailable
	// InvalidDatabaseFile means the database payload's magic number is wrong.
	InvalidDatabaseFile
	// InvalidFirmwareFile means the firmware payload is too short to carry a
	// version or does not match its release hash.
	InvalidFirmwareFile
	// DeviceOpenCancelled means the user declined access to the device.
	DeviceOpenCancelled
	// DeviceOpenTransient means opening kept failing until attempts ran out.
	// With unbounded retries it is never surfaced.
	DeviceOpenTransient
	// UserCancelledOnDevice means the user rejected the update on the device.
	UserCancelledOnDevice
	// InvalidTransferData means the device rejected the transfer.
	InvalidTransferData
)

// String returns the wire name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case FetchUnavailable:
		return "fetch-unavailable"
	case InvalidDatabaseFile:
		return "invalid-database-file"
	case InvalidFirmwareFile:
		return "invalid-firmware-file"
	case DeviceOpenCancelled:
		return "device-open-cancelled"
	case DeviceOpenTransient:
		return "device-open-transient"
	case UserCancelledOnDevice:
		return "user-cancelled-on-device"
	case InvalidTransferData:
		return "invalid-transfer-data"
	default:
		return "unclassified"
	}
}

// Message returns the user-facing message for a failure of kind k while
// updating target.
func (k ErrorKind) Message(target Target) string {
	switch k {
	case FetchUnavailable:
		return "Update information is unavailable. Check your connection and try again."
	case InvalidDatabaseFile:
		return "Invalid database file"
	case InvalidFirmwareFile:
		return "Invalid firmware file"
	case DeviceOpenCancelled:
		return "Access to the device was denied"
	case DeviceOpenTransient:
		return "Could not connect to the device"
	case UserCancelledOnDevice:
		if target == TargetDatabase {
			return "Database update canceled by user"
		}
		return "Firmware update canceled by user"
	case InvalidTransferData:
		if target == TargetDatabase {
			return "Invalid data. Failed to update the database"
		}
		return "Invalid data. Update failed."
	default:
		return "Unexpected error"
	}
}

// Error is a classified update failure.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("update: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("update: %s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or
// Unclassified.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unclassified
}

// Classify maps errors from the registry and device layers onto an
// ErrorKind. Device status words other than the user-rejection status
// become InvalidTransferData.
func Classify(err error) ErrorKind {
	var e *Error
	switch {
	case err == nil:
		return Unclassified
	case errors.As(err, &e):
		return e.Kind
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Unclassified
	case errors.Is(err, shell.ErrOpenCancelled):
		return DeviceOpenCancelled
	case errors.Is(err, shell.ErrOpenFailed):
		return DeviceOpenTransient
	case shell.IsSecurityNotSatisfied(err):
		return UserCancelledOnDevice
	case shell.IsDeviceError(err):
		return InvalidTransferData
	case errors.Is(err, release.ErrHashMismatch):
		return InvalidFirmwareFile
	case errors.Is(err, release.ErrFetchUnavailable),
		errors.Is(err, release.ErrDisabled),
		errors.Is(err, release.ErrPayloadTooLarge):
		return FetchUnavailable
	default:
		return Unclassified
	}
}

// classifyTransfer is Classify for errors raised while the device is
// receiving a payload: anything short of cancellation counts as rejected
// data.
func classifyTransfer(err error) ErrorKind {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Unclassified
	}
	if k := Classify(err); k == UserCancelledOnDevice {
		return k
	}
	return InvalidTransferData
}

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
