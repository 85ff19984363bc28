package shellhid

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	reportSize = 64
	channelID  = 0x0101
	tagAPDU    = 0x05

	headerSize      = 5 // channel(2) + tag(1) + seq(2)
	firstHeaderSize = headerSize + 2
)

// frame splits an APDU into HID reports.
func frame(apdu []byte) [][]byte {
	var reports [][]byte
	length := make([]byte, 2)
	binary.BigEndian.PutUint16(length, uint16(len(apdu)))
	data := append(length, apdu...)

	for seq := 0; len(data) > 0; seq++ {
		report := make([]byte, reportSize)
		binary.BigEndian.PutUint16(report[0:2], channelID)
		report[2] = tagAPDU
		binary.BigEndian.PutUint16(report[3:5], uint16(seq))
		n := copy(report[headerSize:], data)
		data = data[n:]
		reports = append(reports, report)
	}
	return reports
}

// readFramed reassembles one response from consecutive HID reports.
func readFramed(r io.Reader) ([]byte, error) {
	buf := make([]byte, reportSize)
	var (
		out      []byte
		expected = -1
	)
	for seq := 0; expected < 0 || len(out) < expected; seq++ {
		n, err := r.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading report: %w", err)
		}
		if n < headerSize {
			return nil, fmt.Errorf("%w: report of %d bytes", ErrFraming, n)
		}
		report := buf[:n]
		if binary.BigEndian.Uint16(report[0:2]) != channelID || report[2] != tagAPDU {
			return nil, fmt.Errorf("%w: unexpected channel or tag", ErrFraming)
		}
		if got := int(binary.BigEndian.Uint16(report[3:5])); got != seq {
			return nil, fmt.Errorf("%w: sequence %d, want %d", ErrFraming, got, seq)
		}

		body := report[headerSize:]
		if seq == 0 {
			if len(body) < 2 {
				return nil, fmt.Errorf("%w: missing length", ErrFraming)
			}
			expected = int(binary.BigEndian.Uint16(body[0:2]))
			body = body[2:]
			out = make([]byte, 0, expected)
		}
		remaining := expected - len(out)
		if len(body) > remaining {
			body = body[:remaining]
		}
		out = append(out, body...)
	}
	return out, nil
}
