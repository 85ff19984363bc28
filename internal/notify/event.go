package notify

import (
	"time"
)

// Name identifies an event type.
type Name string

// Event names.
const (
	DeviceAdded            Name = "device-added"
	DeviceRemoved          Name = "device-removed"
	MetadataAvailable      Name = "metadata-available"
	MetadataUnavailable    Name = "metadata-unavailable"
	PayloadSourcingStarted Name = "payload-sourcing-started"
	TransferSize           Name = "transfer-size"
	AlreadyLatest          Name = "already-latest"
	TransferStarted        Name = "transfer-started"
	ChunkProgress          Name = "chunk-progress"
	TransferSucceeded      Name = "transfer-succeeded"
	TransferFailed         Name = "transfer-failed"
	RequestError           Name = "request-error"
)

// Event is a single notification.
type Event struct {
	Name      Name      `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
	Payload   any       `json:"payload,omitempty"`
}

// New creates an event stamped with the current time.
func New(name Name, requestID string, payload any) Event {
	return Event{
		Name:      name,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
		Payload:   payload,
	}
}

// DevicePayload accompanies device-added.
type DevicePayload struct {
	FirmwareVersion  string `json:"firmware_version,omitempty"`
	DatabaseVersion  uint32 `json:"database_version,omitempty"`
	FirmwareIsLatest bool   `json:"firmware_is_latest"`
	DatabaseIsLatest bool   `json:"database_is_latest"`
	QueryFailed      bool   `json:"query_failed,omitempty"`
}

// MetadataPayload accompanies metadata-available. Device is set when an
// attached device was re-queried against the new metadata.
type MetadataPayload struct {
	FirmwareVersion string         `json:"firmware_version"`
	DatabaseVersion uint32         `json:"database_version"`
	Device          *DevicePayload `json:"device,omitempty"`
}

// SourcingPayload accompanies payload-sourcing-started.
type SourcingPayload struct {
	Target          string `json:"target"`
	Version         string `json:"version"`
	Local           bool   `json:"local"`
	DeviceConnected bool   `json:"device_connected"`
}

// SizePayload accompanies transfer-size.
type SizePayload struct {
	Bytes int `json:"bytes"`
}

// TargetPayload accompanies already-latest and transfer-started.
type TargetPayload struct {
	Target string `json:"target"`
}

// ProgressPayload accompanies chunk-progress. Bytes is cumulative.
type ProgressPayload struct {
	Target string `json:"target"`
	Bytes  int    `json:"bytes"`
	Total  int    `json:"total"`
}

// SucceededPayload accompanies transfer-succeeded. Verified is only set for
// database transfers.
type SucceededPayload struct {
	Target   string `json:"target"`
	Verified *bool  `json:"verified,omitempty"`
}

// FailedPayload accompanies transfer-failed and request-error.
type FailedPayload struct {
	Target  string `json:"target,omitempty"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
