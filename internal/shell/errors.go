package shell

import (
	"errors"
	"fmt"
)

// Sentinel errors for device session operations.
var (
	// ErrOpenCancelled means the user declined access to the device. It is
	// never retried.
	ErrOpenCancelled = errors.New("shell: device open cancelled by user")

	// ErrOpenFailed is returned when the bounded number of open attempts is
	// exhausted.
	ErrOpenFailed = errors.New("shell: device open failed")

	// ErrNoDevice is returned by transports when no matching device is attached.
	ErrNoDevice = errors.New("shell: no device attached")

	// ErrSessionClosed is returned for operations on a closed session.
	ErrSessionClosed = errors.New("shell: session closed")
)

// Device status words.
const (
	StatusOK                         uint16 = 0x9000
	StatusSecurityStatusNotSatisfied uint16 = 0x6982
	StatusWrongData                  uint16 = 0x6a80
	StatusWrongLength                uint16 = 0x6700
	StatusInsNotSupported            uint16 = 0x6d00
)

// StatusError is a non-success status word reported by the device.
type StatusError struct {
	Code uint16
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("shell: device status 0x%04x", e.Code)
}

// IsSecurityNotSatisfied reports whether err carries the status the device
// returns when the user rejects an update on its screen.
func IsSecurityNotSatisfied(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == StatusSecurityStatusNotSatisfied
}

// IsDeviceError reports whether err carries any device status word.
func IsDeviceError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}
