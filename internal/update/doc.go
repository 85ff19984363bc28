// Package update drives firmware and database updates of the shell.
//
// An Orchestrator runs one Request through a fixed sequence of states:
//
//	Idle → SourcingPayload → Connecting → Checking → Updating → Terminal
//
// The payload is either supplied by the caller (a local file) or downloaded
// from the release registry snapshot current when the request started.
// Database payloads are validated by their magic number before any device
// contact. Without an attached device the request stops after sourcing
// with OutcomePending.
//
// Remote updates are skipped when the device already runs the release
// version; local updates always transfer. Device failures are classified
// into a closed set of ErrorKind values and reported, never panicked.
//
// Service wraps the orchestrator with the long-lived state of the updater:
// hotplug tracking, the last version comparison, connectivity changes, the
// one-update-at-a-time guard and update history.
package update
