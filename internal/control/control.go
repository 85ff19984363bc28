package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/shell-updater/internal/infrastructure/mqtt"
	"github.com/nerrad567/shell-updater/internal/notify"
	"github.com/nerrad567/shell-updater/internal/update"
)

// Command names, the last segment of the command topic.
const (
	CommandUpdateFirmware = "update-firmware"
	CommandUpdateDatabase = "update-database"
	CommandConnectivity   = "connectivity"
)

// Reasons reported in request-error events for rejected commands.
const (
	ReasonInvalidCommand   = "invalid-command"
	ReasonUpdateInProgress = "update-in-progress"
)

const commandQoS = 1

// ErrUnknownCommand is returned by the handler for unrecognised topics.
var ErrUnknownCommand = errors.New("control: unknown command")

// Subscriber is the MQTT surface used by Controller. Satisfied by *mqtt.Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Updater is the service surface commands dispatch to. Satisfied by
// *update.Service.
type Updater interface {
	UpdateFirmware(ctx context.Context, local []byte) (update.Result, error)
	UpdateDatabase(ctx context.Context, local []byte) (update.Result, error)
	HandleConnectivity(ctx context.Context, online bool) error
}

// Logger is the logging surface used by Controller.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

type connectivityCommand struct {
	Online *bool `json:"online"`
}

// Controller dispatches MQTT commands to an Updater.
//
// Updates run on their own goroutine so the MQTT delivery goroutine is
// never held for the length of a transfer.
type Controller struct {
	sub     Subscriber
	updater Updater
	sink    notify.Sink
	logger  Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Controller. sink receives request-error events for
// rejected commands and may be nil.
func New(sub Subscriber, updater Updater, sink notify.Sink) *Controller {
	if sink == nil {
		sink = notify.Discard
	}
	return &Controller{
		sub:     sub,
		updater: updater,
		sink:    sink,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for command handling.
func (c *Controller) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Start subscribes to the command tree. Commands are processed until Stop
// or until ctx is cancelled.
func (c *Controller) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	topic := mqtt.Topics{}.AllCommands()
	if err := c.sub.Subscribe(topic, commandQoS, c.handle); err != nil {
		c.cancel()
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	c.logger.Info("subscribed to commands", "topic", topic)
	return nil
}

// Stop unsubscribes, cancels running commands and waits for them to exit.
func (c *Controller) Stop() {
	if c.cancel == nil {
		return
	}
	if err := c.sub.Unsubscribe(mqtt.Topics{}.AllCommands()); err != nil {
		c.logger.Warn("unsubscribe from commands failed", "error", err)
	}
	c.cancel()
	c.wg.Wait()
}

// handle is the MQTT message handler for the command tree.
func (c *Controller) handle(topic string, payload []byte) error {
	if c.ctx.Err() != nil {
		return nil
	}
	name, ok := mqtt.Topics{}.CommandName(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, topic)
	}
	c.logger.Info("received command", "command", name)

	switch name {
	case CommandUpdateFirmware:
		c.goUpdate(name, c.updater.UpdateFirmware)
	case CommandUpdateDatabase:
		c.goUpdate(name, c.updater.UpdateDatabase)
	case CommandConnectivity:
		var cmd connectivityCommand
		if err := json.Unmarshal(payload, &cmd); err != nil || cmd.Online == nil {
			c.reject(name, ReasonInvalidCommand, `expected {"online": bool}`)
			return fmt.Errorf("invalid connectivity payload: %q", payload)
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.updater.HandleConnectivity(c.ctx, *cmd.Online); err != nil {
				c.logger.Warn("connectivity change failed", "online", *cmd.Online, "error", err)
			}
		}()
	default:
		c.reject(name, ReasonInvalidCommand, "unknown command")
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return nil
}

func (c *Controller) goUpdate(name string, run func(context.Context, []byte) (update.Result, error)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		res, err := run(c.ctx, nil)
		if errors.Is(err, update.ErrUpdateInProgress) {
			c.reject(name, ReasonUpdateInProgress, "another update is already running")
			return
		}
		c.logger.Info("command finished",
			"command", name,
			"request_id", res.RequestID,
			"outcome", res.Outcome.String(),
		)
	}()
}

// reject reports a command that never reached the orchestrator.
func (c *Controller) reject(command, reason, message string) {
	c.logger.Warn("command rejected", "command", command, "reason", reason)
	c.sink.Notify(notify.New(notify.RequestError, "", notify.FailedPayload{
		Reason:  reason,
		Message: message,
		Detail:  command,
	}))
}
