package release

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nerrad567/shell-updater/internal/codec"
	"github.com/nerrad567/shell-updater/internal/infrastructure/config"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultMaxPayloadSize = 32 << 20

	// maxDescriptorSize caps metadata responses.
	maxDescriptorSize = 64 << 10
)

// Logger defines the logging interface used by Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry fetches release descriptors and downloads release payloads.
//
// Thread Safety: All methods are safe for concurrent use. Current never
// blocks on a refresh in progress.
type Registry struct {
	firmwareURL    string
	databaseURL    string
	downloadBase   string
	maxPayloadSize int64
	verifyHash     bool

	httpClient *http.Client
	current    atomic.Pointer[Snapshot]
	logger     Logger
}

// NewRegistry creates a registry in the disabled state.
//
// Parameters:
//   - cfg: Releases section of the configuration
//
// Returns:
//   - *Registry: Registry ready for Refresh
func NewRegistry(cfg config.ReleasesConfig) *Registry {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxSize := cfg.MaxPayloadSize
	if maxSize <= 0 {
		maxSize = defaultMaxPayloadSize
	}

	r := &Registry{
		firmwareURL:    cfg.FirmwareURL,
		databaseURL:    cfg.DatabaseURL,
		downloadBase:   cfg.DownloadBase,
		maxPayloadSize: maxSize,
		verifyHash:     cfg.VerifyHash,
		httpClient:     &http.Client{Timeout: timeout},
		logger:         noopLogger{},
	}
	r.current.Store(&Snapshot{})
	return r
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetHTTPClient replaces the HTTP client (tests, proxies).
func (r *Registry) SetHTTPClient(c *http.Client) {
	if c != nil {
		r.httpClient = c
	}
}

// Current returns the latest snapshot.
func (r *Registry) Current() Snapshot {
	return *r.current.Load()
}

// Disable drops any known releases.
func (r *Registry) Disable() {
	r.current.Store(&Snapshot{})
}

// Refresh fetches both descriptors. On any failure the registry becomes
// disabled and the returned error wraps ErrFetchUnavailable.
//
// Parameters:
//   - ctx: Context for cancellation of the metadata requests
//
// Returns:
//   - Snapshot: The new snapshot (disabled on error)
//   - error: nil on success
func (r *Registry) Refresh(ctx context.Context) (Snapshot, error) {
	snap, err := r.fetch(ctx)
	if err != nil {
		r.Disable()
		r.logger.Warn("release metadata unavailable", "error", err)
		return Snapshot{}, fmt.Errorf("%w: %w", ErrFetchUnavailable, err)
	}

	r.current.Store(&snap)
	fw, _ := snap.Firmware()
	db, _ := snap.Database()
	r.logger.Info("release metadata refreshed",
		"firmware_version", fw.Version.String(),
		"database_version", db.Version,
	)
	return snap, nil
}

func (r *Registry) fetch(ctx context.Context) (Snapshot, error) {
	var fwDesc firmwareDescriptor
	if err := r.getJSON(ctx, r.firmwareURL, &fwDesc); err != nil {
		return Snapshot{}, fmt.Errorf("firmware metadata: %w", err)
	}
	if fwDesc.Path == "" {
		return Snapshot{}, fmt.Errorf("firmware metadata: empty fw_path")
	}
	fwVersion, err := codec.ParseVersionString(fwDesc.Version)
	if err != nil {
		return Snapshot{}, fmt.Errorf("firmware metadata: %w", err)
	}

	var dbDesc databaseDescriptor
	if err := r.getJSON(ctx, r.databaseURL, &dbDesc); err != nil {
		return Snapshot{}, fmt.Errorf("database metadata: %w", err)
	}
	if dbDesc.Path == "" {
		return Snapshot{}, fmt.Errorf("database metadata: empty db_path")
	}

	return NewSnapshot(
		FirmwareRelease{DownloadPath: fwDesc.Path, ContentHash: fwDesc.Hash, Version: fwVersion},
		DatabaseRelease{DownloadPath: dbDesc.Path, Version: dbDesc.Version},
	), nil
}

// getJSON performs a GET and decodes a bounded JSON body into out.
func (r *Registry) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain body to allow connection reuse
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDescriptorSize)).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Download fetches a release payload by its descriptor path.
//
// Returns:
//   - []byte: Payload bytes
//   - error: Wraps ErrFetchUnavailable or ErrPayloadTooLarge
func (r *Registry) Download(ctx context.Context, path string) ([]byte, error) {
	endpoint, err := r.downloadURL(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchUnavailable, err)
	}

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: HTTP %d for %s", ErrFetchUnavailable, resp.StatusCode, path)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxPayloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrFetchUnavailable, err)
	}
	if int64(len(body)) > r.maxPayloadSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrPayloadTooLarge, r.maxPayloadSize)
	}

	r.logger.Debug("payload downloaded", "path", path, "bytes", len(body), "duration", time.Since(start))
	return body, nil
}

// downloadURL joins the download base with a descriptor path.
func (r *Registry) downloadURL(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty download path")
	}
	base, err := url.Parse(r.downloadBase)
	if err != nil {
		return "", fmt.Errorf("invalid download base: %w", err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid download path %q: %w", path, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// VerifyFirmware checks payload against the descriptor's content hash when
// hash verification is enabled and the hash is a SHA-256 hex digest. Other
// hash formats are not checked.
func (r *Registry) VerifyFirmware(payload []byte, fw FirmwareRelease) error {
	if !r.verifyHash {
		return nil
	}
	return VerifyFirmwareHash(payload, fw.ContentHash)
}

// VerifyFirmwareHash compares the SHA-256 of payload with a hex digest.
// Non-SHA-256 digests are accepted unchecked.
func VerifyFirmwareHash(payload []byte, hash string) error {
	want, err := hex.DecodeString(strings.TrimSpace(hash))
	if err != nil || len(want) != sha256.Size {
		return nil
	}
	got := sha256.Sum256(payload)
	if !bytes.Equal(got[:], want) {
		return fmt.Errorf("%w: got %x", ErrHashMismatch, got)
	}
	return nil
}
