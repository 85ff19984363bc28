package shell

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"golang.org/x/sync/semaphore"
)

// DefaultRetryDelay is the fixed wait between failed open attempts.
const DefaultRetryDelay = time.Second

// Logger defines the logging interface used by this package.
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

// ConnectorOptions configures a Connector.
type ConnectorOptions struct {
	// RetryDelay is the wait between failed open attempts. Default: 1s.
	RetryDelay time.Duration

	// MaxAttempts bounds open attempts. 0 retries until the context ends.
	MaxAttempts int

	// Clock drives retry delays. Default: wall clock.
	Clock clock.Clock

	// OnRetry is called after each failed, retryable attempt.
	OnRetry func(err error, attempt int)

	Logger Logger
}

// ConnectorStats holds operational counters.
type ConnectorStats struct {
	Sessions      uint64
	OpenAttempts  uint64
	OpenFailures  uint64
	OpenCancelled uint64
	SessionActive bool
}

// Connector opens device sessions one at a time.
//
// Thread Safety: Connect may be called concurrently; callers queue on the
// session token in arrival order.
type Connector struct {
	transport   Transport
	token       *semaphore.Weighted
	delay       time.Duration
	maxAttempts int
	clock       clock.Clock
	onRetry     func(err error, attempt int)
	logger      Logger

	sessions      atomic.Uint64
	openAttempts  atomic.Uint64
	openFailures  atomic.Uint64
	openCancelled atomic.Uint64
	active        atomic.Bool
}

// NewConnector creates a Connector for the given transport.
func NewConnector(transport Transport, opts ConnectorOptions) *Connector {
	c := &Connector{
		transport:   transport,
		token:       semaphore.NewWeighted(1),
		delay:       opts.RetryDelay,
		maxAttempts: opts.MaxAttempts,
		clock:       opts.Clock,
		onRetry:     opts.OnRetry,
		logger:      opts.Logger,
	}
	if c.delay <= 0 {
		c.delay = DefaultRetryDelay
	}
	if c.clock == nil {
		c.clock = clock.WallClock
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	return c
}

// Connect waits for the session token, then opens the transport.
//
// Transient open failures are retried every RetryDelay. The call returns
// early when:
//   - the user declines access (error wraps ErrOpenCancelled, no retry)
//   - ctx is done (error wraps ctx.Err())
//   - MaxAttempts is reached (error wraps ErrOpenFailed)
//
// The returned Session must be closed by the caller.
func (c *Connector) Connect(ctx context.Context) (*Session, error) {
	if err := c.token.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for device session: %w", err)
	}

	conn, err := c.open(ctx)
	if err != nil {
		c.token.Release(1)
		return nil, err
	}

	c.sessions.Add(1)
	c.active.Store(true)
	return newSession(conn, func() {
		c.active.Store(false)
		c.token.Release(1)
	}), nil
}

func (c *Connector) open(ctx context.Context) (Conn, error) {
	attempts := c.maxAttempts
	if attempts <= 0 {
		attempts = retry.UnlimitedAttempts
	}

	var conn Conn
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			c.openAttempts.Add(1)
			opened, err := c.transport.Open(ctx)
			if err != nil {
				return err
			}
			conn = opened
			return nil
		},
		IsFatalError: func(err error) bool {
			return errors.Is(err, ErrOpenCancelled) || ctx.Err() != nil
		},
		NotifyFunc: func(err error, attempt int) {
			c.openFailures.Add(1)
			c.logger.Debug("device open failed, retrying", "attempt", attempt, "error", err)
			if c.onRetry != nil {
				c.onRetry(err, attempt)
			}
		},
		Attempts: attempts,
		Delay:    c.delay,
		Clock:    c.clock,
		Stop:     ctx.Done(),
	})

	switch {
	case err == nil:
		return conn, nil
	case errors.Is(err, ErrOpenCancelled):
		c.openCancelled.Add(1)
		c.logger.Warn("device access declined by user")
		return nil, ErrOpenCancelled
	case ctx.Err() != nil:
		return nil, fmt.Errorf("opening device: %w", ctx.Err())
	case retry.IsAttemptsExceeded(err):
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrOpenFailed, attempts, retry.LastError(err))
	default:
		return nil, fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}
}

// Stats returns operational counters.
func (c *Connector) Stats() ConnectorStats {
	return ConnectorStats{
		Sessions:      c.sessions.Load(),
		OpenAttempts:  c.openAttempts.Load(),
		OpenFailures:  c.openFailures.Load(),
		OpenCancelled: c.openCancelled.Load(),
		SessionActive: c.active.Load(),
	}
}
