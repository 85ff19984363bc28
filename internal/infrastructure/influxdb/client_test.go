package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/shell-updater/internal/infrastructure/config"
	"github.com/nerrad567/shell-updater/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and records line-protocol bodies posted to
// /api/v2/write.
type fakeInflux struct {
	mu          sync.Mutex
	lines       []string
	writeStatus int
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping":
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.lines = append(f.lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
		status := f.writeStatus
		f.mu.Unlock()
		if status == 0 {
			status = http.StatusNoContent
		}
		if status != http.StatusNoContent {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"code":"invalid","message":"rejected"}`))
			return
		}
		w.WriteHeader(status)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeInflux) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func newTestServer(t *testing.T) (*fakeInflux, config.InfluxDBConfig) {
	t.Helper()
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	return fake, config.InfluxDBConfig{
		Enabled:       true,
		URL:           srv.URL,
		Token:         "test-token",
		Org:           "keycard",
		Bucket:        "updates",
		BatchSize:     1,
		FlushInterval: 1,
	}
}

func waitForLines(t *testing.T, fake *fakeInflux, n int) []string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if lines := fake.Lines(); len(lines) >= n {
			return lines
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server received %d lines, want %d", len(fake.Lines()), n)
	return nil
}

func TestConnect(t *testing.T) {
	_, cfg := newTestServer(t)

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	_, cfg := newTestServer(t)
	cfg.Enabled = false

	if _, err := influxdb.Connect(context.Background(), cfg); !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg := config.InfluxDBConfig{Enabled: true, URL: url, Org: "o", Bucket: "b"}
	if _, err := influxdb.Connect(context.Background(), cfg); !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	_, cfg := newTestServer(t)
	cfg.BatchSize = -5
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false with default batch settings")
	}
}

func TestWritePointWithTime(t *testing.T) {
	fake, cfg := newTestServer(t)

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	client.WritePointWithTime("update_results",
		map[string]string{"target": "firmware", "outcome": "succeeded"},
		map[string]interface{}{"transferred": int64(4096)},
		ts,
	)
	client.Flush()

	lines := waitForLines(t, fake, 1)
	want := "update_results,outcome=succeeded,target=firmware transferred=4096i " + "1772366400000000000"
	if lines[0] != want {
		t.Errorf("line = %q, want %q", lines[0], want)
	}
}

func TestWritePoint(t *testing.T) {
	fake, cfg := newTestServer(t)

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WritePoint("update_results", map[string]string{"target": "database"}, map[string]interface{}{"duration_ms": int64(12)})
	client.Flush()

	lines := waitForLines(t, fake, 1)
	if !strings.HasPrefix(lines[0], "update_results,target=database duration_ms=12i ") {
		t.Errorf("line = %q", lines[0])
	}
}

func TestWriteErrorsReported(t *testing.T) {
	fake, cfg := newTestServer(t)
	fake.mu.Lock()
	fake.writeStatus = http.StatusBadRequest
	fake.mu.Unlock()

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	errCh := make(chan error, 1)
	client.SetOnError(func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})

	client.WritePoint("update_results", map[string]string{"target": "firmware"}, map[string]interface{}{"transferred": int64(1)})
	client.Flush()

	select {
	case err := <-errCh:
		if !errors.Is(err, influxdb.ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("write error not reported")
	}
}

func TestClose(t *testing.T) {
	fake, cfg := newTestServer(t)

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}

	// Dropped, not panicking.
	client.WritePoint("update_results", nil, map[string]interface{}{"x": 1})
	client.Flush()
	if n := len(fake.Lines()); n != 0 {
		t.Errorf("server received %d lines after Close, want 0", n)
	}
}

func TestClose_Nil(t *testing.T) {
	client := &influxdb.Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
}
