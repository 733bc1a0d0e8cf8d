package notify

import "time"

// Kind names a notification type. It is also the last segment of the
// MQTT notification topic and the kind tag of the fleet_event point.
type Kind string

const (
	KindApprovalRequested     Kind = "approval_requested"
	KindApprovalAccepted      Kind = "approval_accepted"
	KindApprovalRejected      Kind = "approval_rejected"
	KindDeviceAddedToAccount  Kind = "device_added_to_account"
	KindFirmwareSyncRequested Kind = "firmware_sync_requested"
)

// Message is an outbound notification. Implementations are plain values
// and safe to hand across goroutines.
type Message interface {
	Kind() Kind

	// DeviceSerial is the device the message is about, or "" for fleet-wide messages.
	DeviceSerial() string

	// Recipient is the user the message is addressed to, or "" when it goes to admins.
	Recipient() string

	OccurredAt() time.Time
}

// ApprovalRequested tells admins a user asked for a device.
type ApprovalRequested struct {
	Serial      string    `json:"serial"`
	UserID      string    `json:"user_id"`
	UserEmail   string    `json:"user_email"`
	UserName    string    `json:"user_name"`
	AdminEmails []string  `json:"admin_emails"`
	At          time.Time `json:"at"`
}

func (ApprovalRequested) Kind() Kind              { return KindApprovalRequested }
func (m ApprovalRequested) DeviceSerial() string  { return m.Serial }
func (ApprovalRequested) Recipient() string       { return "" }
func (m ApprovalRequested) OccurredAt() time.Time { return m.At }

// ApprovalAccepted tells the requesting user the device is now theirs.
type ApprovalAccepted struct {
	Serial     string    `json:"serial"`
	UserID     string    `json:"user_id"`
	ApprovedBy string    `json:"approved_by"`
	At         time.Time `json:"at"`
}

func (ApprovalAccepted) Kind() Kind              { return KindApprovalAccepted }
func (m ApprovalAccepted) DeviceSerial() string  { return m.Serial }
func (m ApprovalAccepted) Recipient() string     { return m.UserID }
func (m ApprovalAccepted) OccurredAt() time.Time { return m.At }

// ApprovalRejected is addressed to the user whose request was turned down.
// The device no longer references them by the time this is sent.
type ApprovalRejected struct {
	Serial     string    `json:"serial"`
	UserID     string    `json:"user_id"`
	RejectedBy string    `json:"rejected_by"`
	At         time.Time `json:"at"`
}

func (ApprovalRejected) Kind() Kind              { return KindApprovalRejected }
func (m ApprovalRejected) DeviceSerial() string  { return m.Serial }
func (m ApprovalRejected) Recipient() string     { return m.UserID }
func (m ApprovalRejected) OccurredAt() time.Time { return m.At }

// DeviceAddedToAccount tells a user an admin assigned a device to them directly.
type DeviceAddedToAccount struct {
	Serial     string    `json:"serial"`
	UserID     string    `json:"user_id"`
	AssignedBy string    `json:"assigned_by"`
	At         time.Time `json:"at"`
}

func (DeviceAddedToAccount) Kind() Kind              { return KindDeviceAddedToAccount }
func (m DeviceAddedToAccount) DeviceSerial() string  { return m.Serial }
func (m DeviceAddedToAccount) Recipient() string     { return m.UserID }
func (m DeviceAddedToAccount) OccurredAt() time.Time { return m.At }

// FirmwareSyncRequested instructs devices to fetch a firmware image.
// Serials is always the resolved target list, even when AllDevices is set.
type FirmwareSyncRequested struct {
	FirmwareID  string    `json:"firmware_id"`
	Version     string    `json:"version"`
	FileURL     string    `json:"file_url"`
	ETag        string    `json:"etag,omitempty"`
	SyncJobID   string    `json:"sync_job_id"`
	Serials     []string  `json:"serials"`
	AllDevices  bool      `json:"all_devices"`
	RequestedBy string    `json:"requested_by"`
	At          time.Time `json:"at"`
}

func (FirmwareSyncRequested) Kind() Kind              { return KindFirmwareSyncRequested }
func (FirmwareSyncRequested) DeviceSerial() string    { return "" }
func (FirmwareSyncRequested) Recipient() string       { return "" }
func (m FirmwareSyncRequested) OccurredAt() time.Time { return m.At }
