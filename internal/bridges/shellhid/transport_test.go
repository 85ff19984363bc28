package shellhid

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/karalabe/hid"

	"github.com/nerrad567/shell-updater/internal/codec"
	"github.com/nerrad567/shell-updater/internal/infrastructure/config"
	"github.com/nerrad567/shell-updater/internal/shell"
)

var shellInfo = hid.DeviceInfo{
	Path:      "/dev/hidraw3",
	VendorID:  0x1209,
	ProductID: 0xabcd,
	Product:   "Keycard Shell",
	UsagePage: 0xffa0,
}

func newTestTransport(infos []hid.DeviceInfo, dev *fakeDevice, openErr error) *Transport {
	tr := New(config.DeviceConfig{
		VendorID:        0x1209,
		ProductName:     "Keycard Shell",
		ExchangeTimeout: time.Second,
	})
	tr.supported = func() bool { return true }
	tr.enumerate = func(uint16, uint16) ([]hid.DeviceInfo, error) { return infos, nil }
	tr.open = func(hid.DeviceInfo) (device, error) {
		if openErr != nil {
			return nil, openErr
		}
		return dev, nil
	}
	return tr
}

func TestTransport_Present(t *testing.T) {
	other := hid.DeviceInfo{Path: "/dev/hidraw1", Product: "Some Keyboard"}

	tests := []struct {
		name  string
		infos []hid.DeviceInfo
		want  bool
	}{
		{name: "no devices", infos: nil, want: false},
		{name: "only other products", infos: []hid.DeviceInfo{other}, want: false},
		{name: "shell attached", infos: []hid.DeviceInfo{other, shellInfo}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTransport(tt.infos, nil, nil)
			got, err := tr.Present(context.Background())
			if err != nil {
				t.Fatalf("Present() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Present() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTransport_Unsupported(t *testing.T) {
	tr := newTestTransport(nil, nil, nil)
	tr.supported = func() bool { return false }

	if _, err := tr.Present(context.Background()); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Present() error = %v, want ErrUnsupported", err)
	}
}

func TestTransport_OpenErrors(t *testing.T) {
	t.Run("no device", func(t *testing.T) {
		tr := newTestTransport(nil, nil, nil)
		if _, err := tr.Open(context.Background()); !errors.Is(err, shell.ErrNoDevice) {
			t.Errorf("Open() error = %v, want ErrNoDevice", err)
		}
	})

	t.Run("permission denied", func(t *testing.T) {
		tr := newTestTransport([]hid.DeviceInfo{shellInfo}, nil, os.ErrPermission)
		if _, err := tr.Open(context.Background()); !errors.Is(err, shell.ErrOpenCancelled) {
			t.Errorf("Open() error = %v, want ErrOpenCancelled", err)
		}
	})

	t.Run("busy device", func(t *testing.T) {
		busy := errors.New("hidapi: failed to open device")
		tr := newTestTransport([]hid.DeviceInfo{shellInfo}, nil, busy)
		_, err := tr.Open(context.Background())
		if !errors.Is(err, busy) || errors.Is(err, shell.ErrOpenCancelled) {
			t.Errorf("Open() error = %v, want transient error", err)
		}
	})
}

func TestConn_GetConfiguration(t *testing.T) {
	dev := newFakeDevice(func(apdu []byte) []byte {
		if apdu[1] != insGetAppConfiguration {
			return []byte{0x6d, 0x00}
		}
		return okReply(1, 4, 2, 0x20, 0x01, 0x00, 0x00)
	})
	tr := newTestTransport([]hid.DeviceInfo{shellInfo}, dev, nil)

	conn, err := tr.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	got, err := conn.GetConfiguration(context.Background())
	if err != nil {
		t.Fatalf("GetConfiguration() error = %v", err)
	}
	want := codec.DeviceConfiguration{
		FirmwareVersion: codec.SemanticVersion{Major: 1, Minor: 4, Patch: 2},
		DatabaseVersion: 0x0120,
	}
	if got != want {
		t.Errorf("GetConfiguration() = %+v, want %+v", got, want)
	}
}

func TestConn_LoadFirmwareChunks(t *testing.T) {
	dev := newFakeDevice(func([]byte) []byte { return okReply() })
	tr := newTestTransport([]hid.DeviceInfo{shellInfo}, dev, nil)

	conn, err := tr.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	payload := make([]byte, 2*maxChunkSize+20)
	var chunks []int
	if err := conn.LoadFirmware(context.Background(), payload, func(n int) { chunks = append(chunks, n) }); err != nil {
		t.Fatalf("LoadFirmware() error = %v", err)
	}

	wantChunks := []int{maxChunkSize, maxChunkSize, 20}
	if len(chunks) != len(wantChunks) {
		t.Fatalf("chunks = %v, want %v", chunks, wantChunks)
	}
	for i := range wantChunks {
		if chunks[i] != wantChunks[i] {
			t.Errorf("chunk %d = %d, want %d", i, chunks[i], wantChunks[i])
		}
	}

	cmds := dev.commands()
	if len(cmds) != 3 {
		t.Fatalf("sent %d commands, want 3", len(cmds))
	}
	for i, cmd := range cmds {
		if cmd[1] != insLoadFirmware {
			t.Errorf("command %d INS = %#x, want %#x", i, cmd[1], insLoadFirmware)
		}
		wantP1 := byte(p1NextChunk)
		if i == 0 {
			wantP1 = p1FirstChunk
		}
		if cmd[2] != wantP1 {
			t.Errorf("command %d P1 = %#x, want %#x", i, cmd[2], wantP1)
		}
	}
}

func TestConn_LoadDatabaseRejected(t *testing.T) {
	calls := 0
	dev := newFakeDevice(func([]byte) []byte {
		calls++
		if calls == 2 {
			return []byte{0x69, 0x82}
		}
		return okReply()
	})
	tr := newTestTransport([]hid.DeviceInfo{shellInfo}, dev, nil)

	conn, err := tr.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	var accepted int
	err = conn.LoadDatabase(context.Background(), make([]byte, 3*maxChunkSize), func(n int) { accepted += n })
	if !shell.IsSecurityNotSatisfied(err) {
		t.Fatalf("LoadDatabase() error = %v, want security status", err)
	}
	if accepted != maxChunkSize {
		t.Errorf("accepted = %d bytes, want %d", accepted, maxChunkSize)
	}
	if len(dev.commands()) != 2 {
		t.Errorf("sent %d commands, want 2", len(dev.commands()))
	}
}

func TestConn_LoadEmptyPayload(t *testing.T) {
	dev := newFakeDevice(func([]byte) []byte { return okReply() })
	tr := newTestTransport([]hid.DeviceInfo{shellInfo}, dev, nil)

	conn, err := tr.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	if err := conn.LoadFirmware(context.Background(), nil, func(int) {}); !errors.Is(err, ErrPayloadEmpty) {
		t.Errorf("LoadFirmware() error = %v, want ErrPayloadEmpty", err)
	}
}

func TestConn_ContextCancelUnblocksRead(t *testing.T) {
	// Never reply
	dev := newFakeDevice(func([]byte) []byte { return nil })
	tr := newTestTransport([]hid.DeviceInfo{shellInfo}, dev, nil)

	conn, err := tr.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = conn.GetConfiguration(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("GetConfiguration() error = %v, want deadline exceeded", err)
	}
	if !dev.isClosed() {
		t.Error("device not closed after context ended")
	}
}
