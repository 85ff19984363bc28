package shellhid

import "errors"

// Domain-specific errors for the HID transport.
var (
	// ErrUnsupported is returned when the binary was built without HID support.
	ErrUnsupported = errors.New("shellhid: HID not supported on this platform")

	// ErrFraming is returned when a response report is malformed.
	ErrFraming = errors.New("shellhid: malformed response framing")

	// ErrResponseTooShort is returned when a response lacks a status word.
	ErrResponseTooShort = errors.New("shellhid: response too short")

	// ErrPayloadEmpty is returned when a load command is given no data.
	ErrPayloadEmpty = errors.New("shellhid: empty payload")
)
