package shellhid

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/karalabe/hid"

	"github.com/nerrad567/shell-updater/internal/codec"
	"github.com/nerrad567/shell-updater/internal/infrastructure/config"
	"github.com/nerrad567/shell-updater/internal/shell"
)

const defaultExchangeTimeout = 30 * time.Second

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// device is the subset of a karalabe/hid device used here.
type device interface {
	io.ReadWriteCloser
}

// Ensure Transport implements the shell interfaces.
var (
	_ shell.Transport  = (*Transport)(nil)
	_ shell.Enumerator = (*Transport)(nil)
)

// Transport finds and opens shells on the HID bus.
type Transport struct {
	vendorID        uint16
	productID       uint16
	productName     string
	usagePage       uint16
	exchangeTimeout time.Duration
	logger          Logger

	supported func() bool
	enumerate func(vendorID, productID uint16) ([]hid.DeviceInfo, error)
	open      func(info hid.DeviceInfo) (device, error)
}

// New creates a Transport matching devices described by cfg.
func New(cfg config.DeviceConfig) *Transport {
	t := &Transport{
		vendorID:        cfg.VendorID,
		productID:       cfg.ProductID,
		productName:     cfg.ProductName,
		usagePage:       cfg.UsagePage,
		exchangeTimeout: cfg.ExchangeTimeout,
		logger:          noopLogger{},
		supported:       hid.Supported,
		enumerate:       hid.Enumerate,
		open: func(info hid.DeviceInfo) (device, error) {
			return info.Open()
		},
	}
	if t.exchangeTimeout <= 0 {
		t.exchangeTimeout = defaultExchangeTimeout
	}
	return t
}

// SetLogger sets the logger for the transport.
func (t *Transport) SetLogger(logger Logger) {
	if logger != nil {
		t.logger = logger
	}
}

// find returns the first attached device matching the configured filters.
func (t *Transport) find() (*hid.DeviceInfo, error) {
	if !t.supported() {
		return nil, ErrUnsupported
	}
	infos, err := t.enumerate(t.vendorID, t.productID)
	if err != nil {
		return nil, fmt.Errorf("enumerating HID devices: %w", err)
	}
	for i := range infos {
		if t.matches(&infos[i]) {
			return &infos[i], nil
		}
	}
	return nil, nil
}

func (t *Transport) matches(info *hid.DeviceInfo) bool {
	if t.productName != "" && !strings.EqualFold(info.Product, t.productName) {
		return false
	}
	if t.usagePage != 0 && info.UsagePage != t.usagePage {
		return false
	}
	return true
}

// Present reports whether a matching shell is attached.
func (t *Transport) Present(context.Context) (bool, error) {
	info, err := t.find()
	if err != nil {
		return false, err
	}
	return info != nil, nil
}

// Open opens the first matching shell. Access denied by the operating
// system wraps shell.ErrOpenCancelled since retrying cannot resolve it.
func (t *Transport) Open(ctx context.Context) (shell.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := t.find()
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, shell.ErrNoDevice
	}

	dev, err := t.open(*info)
	if err != nil {
		if isAccessDenied(err) {
			return nil, fmt.Errorf("opening %s: %w: %w", info.Path, shell.ErrOpenCancelled, err)
		}
		return nil, fmt.Errorf("opening %s: %w", info.Path, err)
	}

	t.logger.Debug("device opened", "path", info.Path, "product", info.Product)
	return &conn{dev: dev, timeout: t.exchangeTimeout, logger: t.logger}, nil
}

func isAccessDenied(err error) bool {
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission denied") || strings.Contains(msg, "access denied")
}

// conn is one open HID connection. Exchanges are serialized.
type conn struct {
	mu      sync.Mutex
	dev     device
	timeout time.Duration
	logger  Logger
}

// exchange sends one APDU and returns the response data. The device is
// closed if ctx ends or the exchange outlives the timeout, which unblocks
// a pending read.
func (c *conn) exchange(ctx context.Context, apdu []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		_ = c.dev.Close()
	})
	defer stop()

	for _, report := range frame(apdu) {
		if _, err := c.dev.Write(report); err != nil {
			return nil, c.wrapIOError(ctx, "writing report", err)
		}
	}

	resp, err := readFramed(c.dev)
	if err != nil {
		return nil, c.wrapIOError(ctx, "reading response", err)
	}
	return splitStatus(resp)
}

func (c *conn) wrapIOError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (c *conn) GetConfiguration(ctx context.Context) (codec.DeviceConfiguration, error) {
	data, err := c.exchange(ctx, encodeAPDU(insGetAppConfiguration, 0, 0, nil))
	if err != nil {
		return codec.DeviceConfiguration{}, fmt.Errorf("get configuration: %w", err)
	}
	return decodeConfiguration(data)
}

func (c *conn) LoadFirmware(ctx context.Context, payload []byte, onChunk shell.ChunkFunc) error {
	if err := c.load(ctx, insLoadFirmware, payload, onChunk); err != nil {
		return fmt.Errorf("load firmware: %w", err)
	}
	return nil
}

func (c *conn) LoadDatabase(ctx context.Context, payload []byte, onChunk shell.ChunkFunc) error {
	if err := c.load(ctx, insLoadDatabase, payload, onChunk); err != nil {
		return fmt.Errorf("load database: %w", err)
	}
	return nil
}

// load streams payload in chunks, reporting each accepted chunk.
func (c *conn) load(ctx context.Context, ins byte, payload []byte, onChunk shell.ChunkFunc) error {
	if len(payload) == 0 {
		return ErrPayloadEmpty
	}
	p1 := byte(p1FirstChunk)
	for off := 0; off < len(payload); off += maxChunkSize {
		end := min(off+maxChunkSize, len(payload))
		if _, err := c.exchange(ctx, encodeAPDU(ins, p1, 0, payload[off:end])); err != nil {
			c.logger.Debug("chunk rejected", "offset", off, "error", err)
			return err
		}
		onChunk(end - off)
		p1 = p1NextChunk
	}
	return nil
}

func (c *conn) Close() error {
	return c.dev.Close()
}
