package shellhid

import (
	"encoding/binary"
	"fmt"

	"github.com/nerrad567/shell-updater/internal/codec"
	"github.com/nerrad567/shell-updater/internal/shell"
)

// Command set of the shell's update applet.
const (
	claShell = 0xe0

	insGetAppConfiguration = 0x01
	insLoadFirmware        = 0x20
	insLoadDatabase        = 0x21

	p1FirstChunk = 0x00
	p1NextChunk  = 0x01

	// maxChunkSize is the largest data field sent in one load APDU.
	maxChunkSize = 240
)

// encodeAPDU builds a short-form command APDU.
func encodeAPDU(ins, p1, p2 byte, data []byte) []byte {
	apdu := make([]byte, 0, 5+len(data))
	apdu = append(apdu, claShell, ins, p1, p2, byte(len(data)))
	return append(apdu, data...)
}

// splitStatus separates the response data from its status word and turns
// non-success statuses into *shell.StatusError.
func splitStatus(resp []byte) ([]byte, error) {
	if len(resp) < 2 {
		return nil, fmt.Errorf("%w: %d bytes", ErrResponseTooShort, len(resp))
	}
	sw := binary.BigEndian.Uint16(resp[len(resp)-2:])
	if sw != shell.StatusOK {
		return nil, &shell.StatusError{Code: sw}
	}
	return resp[:len(resp)-2], nil
}

// decodeConfiguration parses the get-app-configuration response:
// firmware major, minor, patch followed by the u32 LE database version.
func decodeConfiguration(data []byte) (codec.DeviceConfiguration, error) {
	if len(data) < 7 {
		return codec.DeviceConfiguration{}, fmt.Errorf("%w: configuration of %d bytes", ErrResponseTooShort, len(data))
	}
	return codec.DeviceConfiguration{
		FirmwareVersion: codec.SemanticVersion{Major: data[0], Minor: data[1], Patch: data[2]},
		DatabaseVersion: binary.LittleEndian.Uint32(data[3:7]),
	}, nil
}
