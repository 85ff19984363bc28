package shell

import (
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/shell-updater/internal/codec"
)

var errTransient = errors.New("hid: device busy")

// MockTransport replays a scripted sequence of Open results.
type MockTransport struct {
	mu      sync.Mutex
	results []error
	opens   int
	conns   []*MockConn
}

func (m *MockTransport) Open(context.Context) (Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.opens
	m.opens++
	if i < len(m.results) && m.results[i] != nil {
		return nil, m.results[i]
	}
	conn := &MockConn{config: codec.DeviceConfiguration{FirmwareVersion: codec.SemanticVersion{Major: 1}}}
	m.conns = append(m.conns, conn)
	return conn, nil
}

func (m *MockTransport) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// MockConn records calls made through a Session.
type MockConn struct {
	mu      sync.Mutex
	config  codec.DeviceConfiguration
	loadErr error
	chunks  []int
	loaded  [][]byte
	closes  int
}

func (c *MockConn) GetConfiguration(context.Context) (codec.DeviceConfiguration, error) {
	return c.config, nil
}

func (c *MockConn) LoadFirmware(_ context.Context, payload []byte, onChunk ChunkFunc) error {
	return c.load(payload, onChunk)
}

func (c *MockConn) LoadDatabase(_ context.Context, payload []byte, onChunk ChunkFunc) error {
	return c.load(payload, onChunk)
}

func (c *MockConn) load(payload []byte, onChunk ChunkFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadErr != nil {
		return c.loadErr
	}
	c.loaded = append(c.loaded, payload)
	for off := 0; off < len(payload); off += 4 {
		n := min(4, len(payload)-off)
		c.chunks = append(c.chunks, n)
		onChunk(n)
	}
	return nil
}

func (c *MockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

// MockEnumerator returns scripted presence values, repeating the last one.
type MockEnumerator struct {
	mu     sync.Mutex
	values []bool
	errs   []error
	calls  int
}

func (e *MockEnumerator) Present(context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.calls
	e.calls++
	if i < len(e.errs) && e.errs[i] != nil {
		return false, e.errs[i]
	}
	if len(e.values) == 0 {
		return false, nil
	}
	if i >= len(e.values) {
		i = len(e.values) - 1
	}
	return e.values[i], nil
}
