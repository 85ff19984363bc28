package update

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/shell-updater/internal/codec"
	"github.com/nerrad567/shell-updater/internal/notify"
	"github.com/nerrad567/shell-updater/internal/release"
	"github.com/nerrad567/shell-updater/internal/shell"
)

var (
	errTransient = errors.New("hid: device busy")
	errNetwork   = errors.New("dial tcp: connection refused")
)

// MockReleases is an in-memory release registry.
type MockReleases struct {
	mu          sync.Mutex
	snap        release.Snapshot
	next        release.Snapshot
	payloads    map[string][]byte
	downloadErr error
	refreshErr  error
	verifyErr   error
	downloads   int
	refreshes   int
}

func newMockReleases(fw release.FirmwareRelease, db release.DatabaseRelease, payloads map[string][]byte) *MockReleases {
	snap := release.NewSnapshot(fw, db)
	return &MockReleases{snap: snap, next: snap, payloads: payloads}
}

func (m *MockReleases) Current() release.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

func (m *MockReleases) Download(_ context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloads++
	if m.downloadErr != nil {
		return nil, m.downloadErr
	}
	p, ok := m.payloads[path]
	if !ok {
		return nil, release.ErrFetchUnavailable
	}
	return p, nil
}

func (m *MockReleases) VerifyFirmware([]byte, release.FirmwareRelease) error {
	return m.verifyErr
}

func (m *MockReleases) Refresh(context.Context) (release.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes++
	if m.refreshErr != nil {
		m.snap = release.Snapshot{}
		return release.Snapshot{}, m.refreshErr
	}
	m.snap = m.next
	return m.snap, nil
}

func (m *MockReleases) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = release.Snapshot{}
}

func (m *MockReleases) Downloads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.downloads
}

// MockConn is a scripted device connection.
type MockConn struct {
	mu        sync.Mutex
	config    codec.DeviceConfiguration
	after     *codec.DeviceConfiguration
	configErr error
	loadErr   error
	chunk     int
	loads     int
	queries   int
	closes    int
	panicOn   string

	// block, when set, holds LoadFirmware/LoadDatabase until closed.
	block chan struct{}
	// queryGate, when set, holds GetConfiguration until closed.
	queryGate chan struct{}
}

func (c *MockConn) GetConfiguration(ctx context.Context) (codec.DeviceConfiguration, error) {
	if c.queryGate != nil {
		select {
		case <-c.queryGate:
		case <-ctx.Done():
			return codec.DeviceConfiguration{}, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.panicOn == "query" {
		panic("device driver fault")
	}
	c.queries++
	if c.configErr != nil {
		return codec.DeviceConfiguration{}, c.configErr
	}
	if c.loads > 0 && c.after != nil {
		return *c.after, nil
	}
	return c.config, nil
}

func (c *MockConn) LoadFirmware(ctx context.Context, payload []byte, onChunk shell.ChunkFunc) error {
	return c.load(ctx, payload, onChunk)
}

func (c *MockConn) LoadDatabase(ctx context.Context, payload []byte, onChunk shell.ChunkFunc) error {
	return c.load(ctx, payload, onChunk)
}

func (c *MockConn) load(ctx context.Context, payload []byte, onChunk shell.ChunkFunc) error {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	c.loads++
	loadErr, chunk := c.loadErr, c.chunk
	c.mu.Unlock()

	if chunk <= 0 {
		chunk = 256
	}
	for off := 0; off < len(payload); off += chunk {
		if loadErr != nil && off > 0 {
			return loadErr
		}
		onChunk(min(chunk, len(payload)-off))
	}
	return loadErr
}

func (c *MockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *MockConn) Loads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}

func (c *MockConn) Queries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queries
}

func (c *MockConn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// MockTransport returns conn after the scripted open errors.
type MockTransport struct {
	mu         sync.Mutex
	openErrs   []error
	alwaysFail error
	conn       *MockConn
	opens      int
}

func (t *MockTransport) Open(context.Context) (shell.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.opens
	t.opens++
	if t.alwaysFail != nil {
		return nil, t.alwaysFail
	}
	if i < len(t.openErrs) && t.openErrs[i] != nil {
		return nil, t.openErrs[i]
	}
	return t.conn, nil
}

func (t *MockTransport) Opens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

// Recorder collects events.
type Recorder struct {
	mu     sync.Mutex
	events []notify.Event
	signal chan notify.Name
}

func newRecorder() *Recorder {
	return &Recorder{signal: make(chan notify.Name, 256)}
}

func (r *Recorder) Notify(ev notify.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	select {
	case r.signal <- ev.Name:
	default:
	}
}

func (r *Recorder) Names() []notify.Name {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]notify.Name, 0, len(r.events))
	for _, ev := range r.events {
		names = append(names, ev.Name)
	}
	return names
}

func (r *Recorder) Find(name notify.Name) (notify.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Name == name {
			return ev, true
		}
	}
	return notify.Event{}, false
}

func (r *Recorder) All(name notify.Name) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Event
	for _, ev := range r.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

// WaitFor blocks until an event named name has been seen.
func (r *Recorder) WaitFor(name notify.Name, timeout time.Duration) bool {
	if _, ok := r.Find(name); ok {
		return true
	}
	deadline := time.After(timeout)
	for {
		select {
		case <-r.signal:
			if _, ok := r.Find(name); ok {
				return true
			}
		case <-deadline:
			_, ok := r.Find(name)
			return ok
		}
	}
}

// firmwareImage builds an image of size bytes carrying the given version.
func firmwareImage(major, minor, patch byte, size int) []byte {
	buf := make([]byte, size)
	buf[codec.FirmwareVersionOffset] = major
	buf[codec.FirmwareVersionOffset+1] = minor
	buf[codec.FirmwareVersionOffset+2] = patch
	return buf
}

// databaseImage builds a valid database image of size bytes.
func databaseImage(version uint32, size int) []byte {
	buf := make([]byte, size)
	binary.LittleEndian.PutUint16(buf[0:2], codec.DatabaseMagic)
	binary.LittleEndian.PutUint32(buf[4:8], version)
	return buf
}

func semver(major, minor, patch uint8) codec.SemanticVersion {
	return codec.SemanticVersion{Major: major, Minor: minor, Patch: patch}
}

// MockHistory is an in-memory HistoryRepository.
type MockHistory struct {
	mu      sync.Mutex
	entries []HistoryEntry
	err     error
}

func (h *MockHistory) Record(_ context.Context, entry HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.entries = append(h.entries, entry)
	return nil
}

func (h *MockHistory) List(_ context.Context, limit int) ([]HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HistoryEntry, 0, len(h.entries))
	for i := len(h.entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, h.entries[i])
	}
	return out, nil
}

// MockTelemetry records written points by measurement.
type MockTelemetry struct {
	mu     sync.Mutex
	points []map[string]string
}

func (m *MockTelemetry) WritePointWithTime(_ string, tags map[string]string, _ map[string]interface{}, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, tags)
}
