package notify

import (
	"encoding/json"
	"sync"
)

// Sink receives events.
type Sink interface {
	Notify(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event)

// Notify calls f(ev).
func (f SinkFunc) Notify(ev Event) {
	f(ev)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Fanout delivers each event to every registered sink in registration order.
//
// Thread Safety: Add and Notify may be called concurrently.
type Fanout struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewFanout creates a Fanout over the given sinks. Nil sinks are skipped.
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		f.Add(s)
	}
	return f
}

// Add registers another sink.
func (f *Fanout) Add(s Sink) {
	if s == nil {
		return
	}
	f.mu.Lock()
	f.sinks = append(f.sinks, s)
	f.mu.Unlock()
}

// Notify delivers ev to all sinks.
func (f *Fanout) Notify(ev Event) {
	f.mu.RLock()
	sinks := f.sinks
	f.mu.RUnlock()

	for _, s := range sinks {
		s.Notify(ev)
	}
}

// Publisher is the subset of the MQTT client used by MQTTSink.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger is the logging interface used by sinks.
type Logger interface {
	Warn(msg string, args ...any)
}

// MQTTSink publishes events as JSON, one topic per event name.
type MQTTSink struct {
	pub    Publisher
	topic  func(name string) string
	qos    byte
	logger Logger
}

// NewMQTTSink creates a sink publishing to topic(name) at the given QoS.
// Publish failures are logged and otherwise ignored.
func NewMQTTSink(pub Publisher, topic func(name string) string, qos byte, logger Logger) *MQTTSink {
	return &MQTTSink{pub: pub, topic: topic, qos: qos, logger: logger}
}

// Notify publishes ev. chunk-progress is sent at QoS 0 since each message
// supersedes the previous one.
func (s *MQTTSink) Notify(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.warn("encoding event failed", "event", ev.Name, "error", err)
		return
	}
	qos := s.qos
	if ev.Name == ChunkProgress {
		qos = 0
	}
	if err := s.pub.Publish(s.topic(string(ev.Name)), payload, qos, false); err != nil {
		s.warn("publishing event failed", "event", ev.Name, "error", err)
	}
}

func (s *MQTTSink) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
