package shellhid

import (
	"encoding/binary"
	"errors"
	"sync"
)

var errDeviceClosed = errors.New("hid: device closed")

// fakeDevice reassembles written APDUs, passes each to handle and queues
// the framed reply for Read. A nil reply leaves Read blocked until Close.
type fakeDevice struct {
	mu      sync.Mutex
	handle  func(apdu []byte) []byte
	pending []byte
	want    int
	replies [][]byte
	apdus   [][]byte
	ready   chan struct{}
	closed  chan struct{}
	once    sync.Once
}

func newFakeDevice(handle func(apdu []byte) []byte) *fakeDevice {
	return &fakeDevice{
		handle: handle,
		want:   -1,
		ready:  make(chan struct{}, 64),
		closed: make(chan struct{}),
	}
}

func (d *fakeDevice) Write(report []byte) (int, error) {
	select {
	case <-d.closed:
		return 0, errDeviceClosed
	default:
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	body := report[headerSize:]
	if d.want < 0 {
		d.want = int(binary.BigEndian.Uint16(body[0:2]))
		body = body[2:]
	}
	remaining := d.want - len(d.pending)
	if len(body) > remaining {
		body = body[:remaining]
	}
	d.pending = append(d.pending, body...)
	if len(d.pending) == d.want {
		apdu := d.pending
		d.pending, d.want = nil, -1
		d.apdus = append(d.apdus, apdu)
		if reply := d.handle(apdu); reply != nil {
			for _, r := range frame(reply) {
				d.replies = append(d.replies, r)
				d.ready <- struct{}{}
			}
		}
	}
	return len(report), nil
}

func (d *fakeDevice) Read(buf []byte) (int, error) {
	select {
	case <-d.ready:
	case <-d.closed:
		return 0, errDeviceClosed
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	r := d.replies[0]
	d.replies = d.replies[1:]
	return copy(buf, r), nil
}

func (d *fakeDevice) Close() error {
	d.once.Do(func() { close(d.closed) })
	return nil
}

func (d *fakeDevice) commands() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]byte(nil), d.apdus...)
}

func (d *fakeDevice) isClosed() bool {
	select {
	case <-d.closed:
		return true
	default:
		return false
	}
}

// okReply appends the success status word to data.
func okReply(data ...byte) []byte {
	return append(data, 0x90, 0x00)
}
