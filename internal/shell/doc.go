// Package shell owns the logical connection to a Keycard Shell.
//
// A Connector opens sessions through an opaque Transport. Opening retries
// with a fixed delay until it succeeds, the caller's context ends, or the
// user declines device access (ErrOpenCancelled, never retried). Only one
// Session may be open per Connector; Connect blocks until the previous
// session is closed.
//
// A Watcher polls an Enumerator and publishes Added/Removed events on a
// channel. It runs independently of any session.
//
// Device status words are surfaced as *StatusError. IsSecurityNotSatisfied
// identifies the one status the updater treats specially: the user refused
// the operation on the device.
package shell
