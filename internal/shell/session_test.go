package shell

import (
	"context"
	"errors"
	"testing"
)

func TestSession_CloseIsIdempotent(t *testing.T) {
	tr := &MockTransport{}
	c := NewConnector(tr, ConnectorOptions{})

	s, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.Close(); err != nil {
			t.Fatalf("Close() #%d error = %v", i+1, err)
		}
	}

	if tr.conns[0].closes != 1 {
		t.Errorf("transport closed %d times, want 1", tr.conns[0].closes)
	}
	if c.Stats().SessionActive {
		t.Error("SessionActive = true after Close")
	}
}

func TestSession_OperationsAfterClose(t *testing.T) {
	c := NewConnector(&MockTransport{}, ConnectorOptions{})
	s, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	s.Close()

	ctx := context.Background()
	if _, err := s.GetConfiguration(ctx); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("GetConfiguration() error = %v, want ErrSessionClosed", err)
	}
	if err := s.LoadFirmware(ctx, []byte{1}, nil); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("LoadFirmware() error = %v, want ErrSessionClosed", err)
	}
	if err := s.LoadDatabase(ctx, []byte{1}, nil); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("LoadDatabase() error = %v, want ErrSessionClosed", err)
	}
}

func TestSession_LoadReportsChunks(t *testing.T) {
	tr := &MockTransport{}
	c := NewConnector(tr, ConnectorOptions{})
	s, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer s.Close()

	var total int
	if err := s.LoadFirmware(context.Background(), make([]byte, 10), func(n int) { total += n }); err != nil {
		t.Fatalf("LoadFirmware() error = %v", err)
	}
	if total != 10 {
		t.Errorf("chunk total = %d, want 10", total)
	}

	// nil chunk handler is allowed
	if err := s.LoadDatabase(context.Background(), make([]byte, 5), nil); err != nil {
		t.Fatalf("LoadDatabase() error = %v", err)
	}
}

func TestIsSecurityNotSatisfied(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "security status", err: &StatusError{Code: StatusSecurityStatusNotSatisfied}, want: true},
		{name: "wrapped", err: errors.Join(errors.New("load"), &StatusError{Code: 0x6982}), want: true},
		{name: "other status", err: &StatusError{Code: StatusWrongData}, want: false},
		{name: "plain error", err: errors.New("io"), want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSecurityNotSatisfied(tt.err); got != tt.want {
				t.Errorf("IsSecurityNotSatisfied() = %v, want %v", got, tt.want)
			}
		})
	}

	if !IsDeviceError(&StatusError{Code: StatusWrongData}) || IsDeviceError(errors.New("x")) {
		t.Error("IsDeviceError misclassified")
	}
	if got := (&StatusError{Code: 0x6982}).Error(); got != "shell: device status 0x6982" {
		t.Errorf("Error() = %q", got)
	}
}
