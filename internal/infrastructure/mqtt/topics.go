package mqtt

import "fmt"

// Topic prefixes for the updater's MQTT tree.
//
//	shellupdater/event/{name}      updater → UI, one topic per event name
//	shellupdater/command/{name}    UI → updater
//	shellupdater/system/status     retained online/offline status (LWT)
const (
	// TopicPrefix is the root of every updater topic.
	TopicPrefix = "shellupdater"

	// TopicPrefixEvent is the base for notification events.
	TopicPrefixEvent = TopicPrefix + "/event"

	// TopicPrefixCommand is the base for inbound commands.
	TopicPrefixCommand = TopicPrefix + "/command"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = TopicPrefix + "/system"
)

// Topics provides builders for updater MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.Event("chunk-progress")
//	// Returns: "shellupdater/event/chunk-progress"
type Topics struct{}

// Event returns the topic an event is published on.
//
// Example: shellupdater/event/device-added
func (Topics) Event(name string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixEvent, name)
}

// Command returns the topic a command is received on.
//
// Example: shellupdater/command/update-firmware
func (Topics) Command(name string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixCommand, name)
}

// SystemStatus returns the retained status topic.
//
// Example: shellupdater/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllEvents returns a pattern matching every event topic.
//
// Pattern: shellupdater/event/+
func (Topics) AllEvents() string {
	return fmt.Sprintf("%s/+", TopicPrefixEvent)
}

// AllCommands returns a pattern matching every command topic.
//
// Pattern: shellupdater/command/+
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/+", TopicPrefixCommand)
}

// CommandName extracts the command name from a command topic. It returns
// false for topics outside the command tree.
func (Topics) CommandName(topic string) (string, bool) {
	prefix := TopicPrefixCommand + "/"
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return "", false
	}
	return topic[len(prefix):], true
}
