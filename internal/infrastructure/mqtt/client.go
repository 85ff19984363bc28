package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/shell-updater/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for the updater's event bus.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are restored on reconnection.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected bool
	connMu    sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is the logging surface used by Client. Satisfied by *logging.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked on paho's delivery goroutine and should hand long
// work (such as a device update) to their own goroutine.
//
// Parameters:
//   - topic: The topic the message was received on (wildcards expanded)
//   - payload: The raw message payload
//
// Returns:
//   - error: Logged only; the message is acknowledged either way
type MessageHandler func(topic string, payload []byte) error

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS)
//  2. Configures the Last Will on shellupdater/system/status
//  3. Attempts the initial connection with a timeout
//
// The online status is published from the connect handler, so it is
// repeated after every reconnect.
//
// Parameters:
//   - cfg: MQTT section of the configuration
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: wraps ErrConnectionFailed if the broker is unreachable
func Connect(cfg config.MQTTConfig) (*Client, error) {
	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)

	c := &Client{
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
		logger:        noopLogger{},
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.setConnected(false)
		c.getLogger().Warn("mqtt connection lost", "error", err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.getLogger().Info("mqtt reconnecting")
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The connect handler runs asynchronously; mark connected now so the
	// caller can subscribe straight away.
	c.setConnected(true)

	return c, nil
}

func (c *Client) handleConnect() {
	c.setConnected(true)
	c.restoreSubscriptions()

	topic := Topics{}.SystemStatus()
	c.client.Publish(topic, byte(c.cfg.QoS), true, statusPayload(statusOnline, c.cfg.Broker.ClientID, ""))
}

// restoreSubscriptions re-subscribes to all tracked topics after reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		// Errors surface as a missing subscription; paho retries on the next reconnect.
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

func (c *Client) setConnected(connected bool) {
	c.connMu.Lock()
	c.connected = connected
	c.connMu.Unlock()
}

// Close publishes a graceful offline status and disconnects.
//
// Returns:
//   - error: always nil; an already closed connection is not an error
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		topic := Topics{}.SystemStatus()
		token := c.client.Publish(topic, byte(c.cfg.QoS), true,
			statusPayload(statusOffline, c.cfg.Broker.ClientID, reasonShutdown))
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)
	return nil
}

// HealthCheck reports whether the broker connection is up.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// SetLogger sets the logger for connection events and handler failures.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler adapts a MessageHandler to paho, recovering panics and
// logging handler errors.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.getLogger().Error("mqtt handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.getLogger().Warn("mqtt handler returned error",
				"topic", msg.Topic(),
				"error", err,
			)
		}
	}
}
