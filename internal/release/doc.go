// Package release tracks the latest firmware and database releases published
// by the shell metadata service.
//
// The registry is either disabled (nothing known) or available (both
// descriptors known). A refresh replaces the snapshot wholesale; readers
// never see a half-updated pair. Refresh is never retried automatically:
// callers invoke it again on reconnect or connectivity change.
package release
