package codec

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func firmwareImage(major, minor, patch byte) []byte {
	buf := make([]byte, 1024)
	buf[FirmwareVersionOffset] = major
	buf[FirmwareVersionOffset+1] = minor
	buf[FirmwareVersionOffset+2] = patch
	return buf
}

func databaseImage(magic uint16, version uint32) []byte {
	buf := make([]byte, 64)
	binary.LittleEndian.PutUint16(buf[0:2], magic)
	binary.LittleEndian.PutUint32(buf[4:8], version)
	return buf
}

func TestParseFirmwareVersion(t *testing.T) {
	v, err := ParseFirmwareVersion(firmwareImage(1, 4, 0))
	if err != nil {
		t.Fatalf("ParseFirmwareVersion() error = %v", err)
	}
	want := SemanticVersion{Major: 1, Minor: 4, Patch: 0}
	if v != want {
		t.Errorf("ParseFirmwareVersion() = %v, want %v", v, want)
	}
	if v.String() != "1.4.0" {
		t.Errorf("String() = %q, want %q", v.String(), "1.4.0")
	}
}

func TestParseFirmwareVersion_ExactMinimumSize(t *testing.T) {
	buf := make([]byte, MinFirmwareSize)
	buf[652], buf[653], buf[654] = 2, 0, 1

	v, err := ParseFirmwareVersion(buf)
	if err != nil {
		t.Fatalf("ParseFirmwareVersion() error = %v", err)
	}
	if v != (SemanticVersion{2, 0, 1}) {
		t.Errorf("ParseFirmwareVersion() = %v, want 2.0.1", v)
	}
}

func TestParseFirmwareVersion_ShortBuffer(t *testing.T) {
	for _, size := range []int{0, 100, 652, 654} {
		_, err := ParseFirmwareVersion(make([]byte, size))
		if !errors.Is(err, ErrShortBuffer) {
			t.Errorf("size %d: error = %v, want ErrShortBuffer", size, err)
		}
	}
}

func TestParseDatabaseHeader(t *testing.T) {
	tests := []struct {
		name        string
		buf         []byte
		wantValid   bool
		wantVersion uint32
	}{
		{name: "valid", buf: databaseImage(DatabaseMagic, 1042), wantValid: true, wantVersion: 1042},
		{name: "magic bytes order", buf: append([]byte{0x32, 0x45, 0, 0, 0x12, 0, 0, 0}, 0), wantValid: true, wantVersion: 0x12},
		{name: "byte-swapped magic", buf: append([]byte{0x45, 0x32, 0, 0, 1, 0, 0, 0}, 0), wantValid: false},
		{name: "wrong magic", buf: databaseImage(0x1234, 7), wantValid: false},
		{name: "empty", buf: nil, wantValid: false},
		{name: "magic without version", buf: []byte{0x32, 0x45, 0, 0}, wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := ParseDatabaseHeader(tt.buf)
			if h.Valid != tt.wantValid {
				t.Fatalf("Valid = %v, want %v", h.Valid, tt.wantValid)
			}
			if tt.wantValid && h.Version != tt.wantVersion {
				t.Errorf("Version = %d, want %d", h.Version, tt.wantVersion)
			}
			if !tt.wantValid && h.VersionString() != "" {
				t.Errorf("VersionString() = %q for invalid header", h.VersionString())
			}
		})
	}
}

func TestParseDatabaseHeader_RecoversVersion(t *testing.T) {
	for _, v := range []uint32{0, 1, 255, 256, 1042, 65535, 1 << 24, math.MaxUint32 - 1, math.MaxUint32} {
		h := ParseDatabaseHeader(databaseImage(DatabaseMagic, v))
		if !h.Valid || h.Version != v {
			t.Errorf("version %d: got %+v", v, h)
		}
	}
}

func TestParseVersionString(t *testing.T) {
	tests := []struct {
		in      string
		want    SemanticVersion
		wantErr bool
	}{
		{in: "1.3.9", want: SemanticVersion{1, 3, 9}},
		{in: "0.0.0", want: SemanticVersion{}},
		{in: "255.255.255", want: SemanticVersion{255, 255, 255}},
		{in: "256.0.0", wantErr: true},
		{in: "1.2", wantErr: true},
		{in: "v1.2.3", wantErr: true},
		{in: "1.2.3-rc1", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVersionString(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidVersion) {
					t.Errorf("ParseVersionString(%q) error = %v, want ErrInvalidVersion", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseVersionString(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseVersionString(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCompareFirmware_TotalOrder(t *testing.T) {
	var versions []SemanticVersion
	for _, c := range []uint8{0, 1, 9, 255} {
		for _, d := range []uint8{0, 3, 255} {
			versions = append(versions,
				SemanticVersion{c, d, 0},
				SemanticVersion{d, c, 1},
				SemanticVersion{1, c, d},
			)
		}
	}

	for _, a := range versions {
		if CompareFirmware(a, a) != 0 {
			t.Fatalf("CompareFirmware(%v, %v) != 0", a, a)
		}
		for _, b := range versions {
			ab, ba := CompareFirmware(a, b), CompareFirmware(b, a)
			if ab != -ba {
				t.Fatalf("antisymmetry violated for %v, %v: %d vs %d", a, b, ab, ba)
			}
			if ab == 0 && a != b {
				t.Fatalf("distinct versions %v and %v compare equal", a, b)
			}
			for _, c := range versions {
				if ab <= 0 && CompareFirmware(b, c) <= 0 && CompareFirmware(a, c) > 0 {
					t.Fatalf("transitivity violated for %v <= %v <= %v", a, b, c)
				}
			}
		}
	}
}

func TestCompareFirmware_MostSignificantFirst(t *testing.T) {
	if CompareFirmware(SemanticVersion{1, 4, 0}, SemanticVersion{1, 3, 9}) != 1 {
		t.Error("1.4.0 should be newer than 1.3.9")
	}
	if CompareFirmware(SemanticVersion{0, 255, 255}, SemanticVersion{1, 0, 0}) != -1 {
		t.Error("0.255.255 should be older than 1.0.0")
	}
}
