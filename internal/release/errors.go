package release

import "errors"

// Sentinel errors for release metadata operations.
var (
	// ErrFetchUnavailable is returned when metadata or a payload cannot be
	// retrieved. The registry is left disabled after a failed refresh.
	ErrFetchUnavailable = errors.New("release: metadata unavailable")

	// ErrDisabled is returned when an operation needs release descriptors
	// but the registry has none.
	ErrDisabled = errors.New("release: registry disabled")

	// ErrPayloadTooLarge is returned when a download exceeds the configured cap.
	ErrPayloadTooLarge = errors.New("release: payload exceeds size limit")

	// ErrHashMismatch is returned when a firmware image does not match the
	// descriptor hash.
	ErrHashMismatch = errors.New("release: firmware hash mismatch")
)
