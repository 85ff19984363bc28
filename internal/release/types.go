package release

import "github.com/nerrad567/shell-updater/internal/codec"

// FirmwareRelease describes the latest published firmware image.
type FirmwareRelease struct {
	DownloadPath string                `json:"download_path"`
	ContentHash  string                `json:"content_hash"`
	Version      codec.SemanticVersion `json:"version"`
}

// DatabaseRelease describes the latest published database image.
type DatabaseRelease struct {
	DownloadPath string `json:"download_path"`
	Version      uint32 `json:"version"`
}

// Snapshot is an immutable view of the registry. The zero value is the
// disabled state.
type Snapshot struct {
	firmware *FirmwareRelease
	database *DatabaseRelease
}

// NewSnapshot returns an available snapshot holding both descriptors.
func NewSnapshot(fw FirmwareRelease, db DatabaseRelease) Snapshot {
	return Snapshot{firmware: &fw, database: &db}
}

// Available reports whether release descriptors are known.
func (s Snapshot) Available() bool {
	return s.firmware != nil && s.database != nil
}

// Firmware returns the firmware descriptor, if available.
func (s Snapshot) Firmware() (FirmwareRelease, bool) {
	if !s.Available() {
		return FirmwareRelease{}, false
	}
	return *s.firmware, true
}

// Database returns the database descriptor, if available.
func (s Snapshot) Database() (DatabaseRelease, bool) {
	if !s.Available() {
		return DatabaseRelease{}, false
	}
	return *s.database, true
}

// RemoteVersions returns the versions to compare devices against. Both
// fields are nil while disabled, which makes every comparison report
// "latest".
func (s Snapshot) RemoteVersions() codec.RemoteVersions {
	if !s.Available() {
		return codec.RemoteVersions{}
	}
	fw := s.firmware.Version
	db := s.database.Version
	return codec.RemoteVersions{Firmware: &fw, Database: &db}
}

// firmwareDescriptor is the wire form served by the firmware metadata endpoint.
type firmwareDescriptor struct {
	Path    string `json:"fw_path"`
	Hash    string `json:"hash"`
	Version string `json:"version"`
}

// databaseDescriptor is the wire form served by the database metadata endpoint.
type databaseDescriptor struct {
	Path    string `json:"db_path"`
	Version uint32 `json:"version"`
}
