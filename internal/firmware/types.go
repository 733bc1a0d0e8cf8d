package firmware

import "time"

// SyncStatus tracks whether a firmware image has been pushed to devices.
type SyncStatus string

const (
	NotSynced SyncStatus = "not_synced"
	Synced    SyncStatus = "synced"
)

// Firmware is an uploaded device firmware image. Exactly one row carries
// IsLatest whenever any row exists.
type Firmware struct {
	ID         string     `json:"id"`
	Version    string     `json:"version"`
	Key        string     `json:"key"`
	ETag       string     `json:"etag"`
	FileURL    string     `json:"file_url"`
	IsLatest   bool       `json:"is_latest"`
	SyncStatus SyncStatus `json:"sync_status"`
	SyncAt     *time.Time `json:"sync_at,omitempty"`
	SyncBy     *string    `json:"sync_by,omitempty"`
	CreatedBy  *string    `json:"created_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// IsSynced reports whether the image has been pushed.
func (f *Firmware) IsSynced() bool {
	return f.SyncStatus == Synced
}

// SyncJob records one push of a firmware image to a set of devices.
// Rows are only appended to; confirmations fill ConfirmedDevices.
type SyncJob struct {
	ID                  string     `json:"id"`
	FirmwareID          string     `json:"firmware_id"`
	SyncJobID           string     `json:"sync_job_id"`
	SyncBy              string     `json:"sync_by"`
	IsAllDeviceSelected bool       `json:"is_all_device_selected"`
	AttachedDevices     []string   `json:"attached_devices"`
	ConfirmedDevices    []string   `json:"confirmed_devices"`
	ConfirmedCount      int        `json:"confirmed_count"`
	TotalDeviceCount    int        `json:"total_device_count"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// Completed reports whether every targeted device has confirmed.
func (j *SyncJob) Completed() bool {
	return j.CompletedAt != nil
}

// VersionRef is the minimal projection used when recomputing the latest flag.
type VersionRef struct {
	ID       string
	Version  string
	IsLatest bool
}

// SyncRequest describes a firmware push.
type SyncRequest struct {
	FirmwareID string
	By         string

	// Serials are the target devices. Ignored when AllDevices is set.
	Serials    []string
	AllDevices bool
}
