// Package shellhid talks to a Keycard Shell over USB HID.
//
// Commands are APDUs split across 64-byte HID reports:
//
//	first report:  channel(2) tag(1)=0x05 seq(2)=0 length(2) data...
//	next reports:  channel(2) tag(1)=0x05 seq(2)=n data...
//
// All multi-byte header fields are big-endian. Responses use the same
// framing and end with a two-byte status word; anything other than 0x9000
// is returned as *shell.StatusError.
//
// Transport implements shell.Transport and shell.Enumerator, so the same
// value drives sessions and hotplug polling.
package shellhid
