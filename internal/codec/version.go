package codec

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Masterminds/semver/v3"
)

// Image layout constants.
const (
	// FirmwareVersionOffset is where the version triple starts in a firmware image.
	FirmwareVersionOffset = 652

	// MinFirmwareSize is the smallest image that carries a complete version triple.
	MinFirmwareSize = FirmwareVersionOffset + 3

	// DatabaseMagic marks a genuine database image (little-endian at offset 0).
	DatabaseMagic uint16 = 0x4532

	databaseVersionOffset = 4
	minDatabaseHeaderSize = databaseVersionOffset + 4
)

// SemanticVersion is a firmware version triple. Ordering is lexicographic by
// major, minor, patch.
type SemanticVersion struct {
	Major uint8 `json:"major"`
	Minor uint8 `json:"minor"`
	Patch uint8 `json:"patch"`
}

// String formats the version as MAJOR.MINOR.PATCH.
func (v SemanticVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or +1 when v is lower than, equal to or higher than other.
func (v SemanticVersion) Compare(other SemanticVersion) int {
	if c := cmp.Compare(v.Major, other.Major); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Minor, other.Minor); c != 0 {
		return c
	}
	return cmp.Compare(v.Patch, other.Patch)
}

// AtLeast reports whether v >= other.
func (v SemanticVersion) AtLeast(other SemanticVersion) bool {
	return v.Compare(other) >= 0
}

// CompareFirmware is the free-function form of SemanticVersion.Compare.
func CompareFirmware(a, b SemanticVersion) int {
	return a.Compare(b)
}

// ParseFirmwareVersion reads the version triple embedded in a firmware image.
//
// Returns:
//   - SemanticVersion: Version found at FirmwareVersionOffset
//   - error: ErrShortBuffer if buf is smaller than MinFirmwareSize
func ParseFirmwareVersion(buf []byte) (SemanticVersion, error) {
	if len(buf) < MinFirmwareSize {
		return SemanticVersion{}, fmt.Errorf("%w: %d bytes, need %d", ErrShortBuffer, len(buf), MinFirmwareSize)
	}
	b := buf[FirmwareVersionOffset:MinFirmwareSize]
	return SemanticVersion{Major: b[0], Minor: b[1], Patch: b[2]}, nil
}

// ParseVersionString parses the MAJOR.MINOR.PATCH form used by release
// metadata. Pre-release and build suffixes are rejected because the device
// only stores the numeric triple.
func ParseVersionString(s string) (SemanticVersion, error) {
	v, err := semver.StrictNewVersion(s)
	if err != nil {
		return SemanticVersion{}, fmt.Errorf("%w %q: %v", ErrInvalidVersion, s, err)
	}
	if v.Prerelease() != "" || v.Metadata() != "" {
		return SemanticVersion{}, fmt.Errorf("%w %q: suffix not allowed", ErrInvalidVersion, s)
	}
	if v.Major() > math.MaxUint8 || v.Minor() > math.MaxUint8 || v.Patch() > math.MaxUint8 {
		return SemanticVersion{}, fmt.Errorf("%w %q: component out of range", ErrInvalidVersion, s)
	}
	return SemanticVersion{
		Major: uint8(v.Major()),
		Minor: uint8(v.Minor()),
		Patch: uint8(v.Patch()),
	}, nil
}

// DatabaseHeader is the decoded prefix of a database image. Version is only
// meaningful when Valid is true.
type DatabaseHeader struct {
	Valid   bool
	Version uint32
}

// ParseDatabaseHeader checks the magic marker and, if present, reads the
// database version. Buffers too short to hold both fields are invalid.
func ParseDatabaseHeader(buf []byte) DatabaseHeader {
	if len(buf) < minDatabaseHeaderSize {
		return DatabaseHeader{}
	}
	if binary.LittleEndian.Uint16(buf[0:2]) != DatabaseMagic {
		return DatabaseHeader{}
	}
	return DatabaseHeader{
		Valid:   true,
		Version: binary.LittleEndian.Uint32(buf[databaseVersionOffset:minDatabaseHeaderSize]),
	}
}

// VersionString renders the header version for display, or "" when invalid.
func (h DatabaseHeader) VersionString() string {
	if !h.Valid {
		return ""
	}
	return fmt.Sprintf("%d", h.Version)
}
