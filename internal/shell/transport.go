package shell

import (
	"context"

	"github.com/nerrad567/shell-updater/internal/codec"
)

// ChunkFunc receives the size in bytes of each chunk the device accepted.
type ChunkFunc func(n int)

// Transport opens connections to the device.
//
// Open must return an error wrapping ErrOpenCancelled when the user declined
// access; every other error is treated as transient.
type Transport interface {
	Open(ctx context.Context) (Conn, error)
}

// Conn is one open transport connection.
type Conn interface {
	GetConfiguration(ctx context.Context) (codec.DeviceConfiguration, error)
	LoadFirmware(ctx context.Context, payload []byte, onChunk ChunkFunc) error
	LoadDatabase(ctx context.Context, payload []byte, onChunk ChunkFunc) error
	Close() error
}

// Enumerator reports whether a matching device is attached.
type Enumerator interface {
	Present(ctx context.Context) (bool, error)
}
