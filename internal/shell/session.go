package shell

import (
	"context"
	"sync"

	"github.com/nerrad567/shell-updater/internal/codec"
)

// Session is a single open connection to the device. It is owned by one
// request and must be closed by it; Close releases the connector's token.
type Session struct {
	conn    Conn
	release func()

	mu     sync.Mutex
	closed bool
}

func newSession(conn Conn, release func()) *Session {
	return &Session{conn: conn, release: release}
}

func (s *Session) active() (Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	return s.conn, nil
}

// GetConfiguration queries the on-device firmware and database versions.
func (s *Session) GetConfiguration(ctx context.Context) (codec.DeviceConfiguration, error) {
	conn, err := s.active()
	if err != nil {
		return codec.DeviceConfiguration{}, err
	}
	return conn.GetConfiguration(ctx)
}

// LoadFirmware transfers a firmware image. onChunk may be nil.
func (s *Session) LoadFirmware(ctx context.Context, payload []byte, onChunk ChunkFunc) error {
	conn, err := s.active()
	if err != nil {
		return err
	}
	return conn.LoadFirmware(ctx, payload, orNop(onChunk))
}

// LoadDatabase transfers a database image. onChunk may be nil.
func (s *Session) LoadDatabase(ctx context.Context, payload []byte, onChunk ChunkFunc) error {
	conn, err := s.active()
	if err != nil {
		return err
	}
	return conn.LoadDatabase(ctx, payload, orNop(onChunk))
}

// Close closes the transport connection and releases the session token.
// Subsequent calls are no-ops.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.conn.Close()
	s.release()
	return err
}

func orNop(fn ChunkFunc) ChunkFunc {
	if fn == nil {
		return func(int) {}
	}
	return fn
}
