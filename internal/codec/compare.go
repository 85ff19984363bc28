package codec

// DeviceConfiguration is what the shell reports about itself. It belongs to
// the session it was read from and must not be reused after that session
// closes.
type DeviceConfiguration struct {
	FirmwareVersion SemanticVersion `json:"firmware_version"`
	DatabaseVersion uint32          `json:"database_version"`
}

// RemoteVersions carries the release versions to compare against. A nil
// field means the corresponding release is unknown.
type RemoteVersions struct {
	Firmware *SemanticVersion
	Database *uint32
}

// Comparison is the outcome of CompareVersions. It is only valid together
// with the DeviceConfiguration and RemoteVersions it was computed from.
type Comparison struct {
	FirmwareIsLatest bool `json:"firmware_is_latest"`
	DatabaseIsLatest bool `json:"database_is_latest"`
}

// CompareVersions decides, per component, whether the device already runs
// the latest release. An unknown remote release counts as latest so that no
// update action is offered for it.
func CompareVersions(local DeviceConfiguration, remote RemoteVersions) Comparison {
	result := Comparison{FirmwareIsLatest: true, DatabaseIsLatest: true}
	if remote.Firmware != nil {
		result.FirmwareIsLatest = local.FirmwareVersion.AtLeast(*remote.Firmware)
	}
	if remote.Database != nil {
		result.DatabaseIsLatest = local.DatabaseVersion >= *remote.Database
	}
	return result
}
