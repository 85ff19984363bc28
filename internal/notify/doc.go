// Package notify carries updater events to presentation collaborators.
//
// Every state change of a device or an update request is published as an
// Event. Sinks decide where events go: the MQTT bus, WebSocket clients of
// the local API, or a test recorder. Fanout delivers one event to many sinks.
//
// # Event names
//
//	device-added              device attached; payload carries the comparison
//	device-removed            device detached
//	metadata-available        release descriptors fetched
//	metadata-unavailable      release descriptors unknown
//	payload-sourcing-started  update payload is being obtained
//	transfer-size             payload size in bytes
//	already-latest            no update needed
//	transfer-started          payload is being sent to the device
//	chunk-progress            cumulative bytes accepted by the device
//	transfer-succeeded        device accepted the payload
//	transfer-failed           update ended with a failure kind
//	request-error             a request failed outside the update flow
//
// Sinks must not block for long; Notify is called on the request's goroutine.
package notify
