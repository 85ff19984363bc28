package codec

import "errors"

// Domain-specific errors for version parsing.
var (
	// ErrShortBuffer is returned when a firmware image is too small to hold
	// its version triple.
	ErrShortBuffer = errors.New("codec: firmware image too short")

	// ErrInvalidVersion is returned when a version string is not MAJOR.MINOR.PATCH
	// with every component in 0-255.
	ErrInvalidVersion = errors.New("codec: invalid version string")
)
