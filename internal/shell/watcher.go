package shell

import (
	"context"
	"time"

	"github.com/juju/clock"
	"gopkg.in/tomb.v2"
)

// DefaultPollInterval is how often the watcher enumerates the bus.
const DefaultPollInterval = time.Second

// HotplugType distinguishes attach from detach.
type HotplugType int

const (
	// Added means a matching device appeared.
	Added HotplugType = iota + 1
	// Removed means the device went away.
	Removed
)

// String returns the event name.
func (t HotplugType) String() string {
	switch t {
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// HotplugEvent is a single attach or detach observation.
type HotplugEvent struct {
	Type HotplugType
	At   time.Time
}

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	PollInterval time.Duration
	Clock        clock.Clock
	Logger       Logger
}

// Watcher polls an Enumerator and emits an event whenever presence changes.
// The first poll that finds a device emits Added; nothing is emitted while
// the device stays absent.
type Watcher struct {
	tomb tomb.Tomb

	enum     Enumerator
	interval time.Duration
	clock    clock.Clock
	logger   Logger
	events   chan HotplugEvent
}

// NewWatcher starts polling immediately. Stop it with Kill and Wait.
func NewWatcher(enum Enumerator, opts WatcherOptions) *Watcher {
	w := &Watcher{
		enum:     enum,
		interval: opts.PollInterval,
		clock:    opts.Clock,
		logger:   opts.Logger,
		events:   make(chan HotplugEvent),
	}
	if w.interval <= 0 {
		w.interval = DefaultPollInterval
	}
	if w.clock == nil {
		w.clock = clock.WallClock
	}
	if w.logger == nil {
		w.logger = noopLogger{}
	}
	w.tomb.Go(w.loop)
	return w
}

// Events delivers hotplug events. It is closed when the watcher stops.
func (w *Watcher) Events() <-chan HotplugEvent {
	return w.events
}

// Kill asks the watcher to stop.
func (w *Watcher) Kill() {
	w.tomb.Kill(nil)
}

// Wait blocks until the watcher has stopped and returns its exit error.
func (w *Watcher) Wait() error {
	return w.tomb.Wait()
}

// Stop kills the watcher and waits for it.
func (w *Watcher) Stop() error {
	w.Kill()
	return w.Wait()
}

func (w *Watcher) loop() error {
	defer close(w.events)

	ctx := w.tomb.Context(context.Background())
	present := false
	for {
		now, err := w.enum.Present(ctx)
		switch {
		case err != nil:
			w.logger.Warn("device enumeration failed", "error", err)
		case now != present:
			present = now
			ev := HotplugEvent{Type: Removed, At: w.clock.Now()}
			if now {
				ev.Type = Added
			}
			w.logger.Debug("hotplug event", "type", ev.Type.String())
			select {
			case w.events <- ev:
			case <-w.tomb.Dying():
				return tomb.ErrDying
			}
		}

		select {
		case <-w.tomb.Dying():
			return tomb.ErrDying
		case <-w.clock.After(w.interval):
		}
	}
}
