package device

import (
	"strings"
	"time"
)

// PoolStatus is the provisioning state of a serial.
type PoolStatus string

const (
	PoolCreated    PoolStatus = "created"
	PoolConfigured PoolStatus = "configured"
)

// Pool is a provisioned serial. A Device row exists for it once it is configured.
type Pool struct {
	ID        string     `json:"id"`
	Serial    string     `json:"serial"`
	Status    PoolStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// AssignStatus is the ownership state of a device.
type AssignStatus string

const (
	NotAssigned     AssignStatus = "not_assigned"
	PendingApproval AssignStatus = "pending_approval"
	Assigned        AssignStatus = "assigned"
)

// Status is the operational switch of a device. Only assigned devices may be active.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// LiveStatus is reported by the device connection layer.
type LiveStatus string

const (
	LiveNA      LiveStatus = "na"
	LiveOnline  LiveStatus = "online"
	LiveOffline LiveStatus = "offline"
)

const (
	// DefaultFirmwareVersion is stored on newly configured devices.
	DefaultFirmwareVersion = "v1.0.0"

	// UnlimitedFences disables the per-device fence override.
	UnlimitedFences = -1

	// MaxFenceOverride is the largest accepted per-device fence override.
	MaxFenceOverride = 100
)

// Details are the owner-editable descriptive fields of a device.
type Details struct {
	Name               string `json:"name"`
	VehicleName        string `json:"vehicleName"`
	VehicleNumber      string `json:"vehicleNumber"`
	DriverName         string `json:"driverName"`
	DriverContact      string `json:"driverContact"`
	DriverOtherDetails string `json:"driverOtherDetails"`
}

// Device is a configured tracker.
type Device struct {
	ID              string       `json:"id"`
	Serial          string       `json:"serial"`
	FirmwareVersion string       `json:"firmwareVersion"`
	LiveStatus      LiveStatus   `json:"liveStatus"`
	AssignStatus    AssignStatus `json:"assignStatus"`
	Status          Status       `json:"status"`

	UserID              *string    `json:"userId,omitempty"`
	ApprovedBy          *string    `json:"approvedBy,omitempty"`
	ApprovedAt          *time.Time `json:"approvedAt,omitempty"`
	ApprovalRequestedAt *time.Time `json:"approvalRequestedAt,omitempty"`
	LastSeenAt          *time.Time `json:"lastSeenAt,omitempty"`

	Details

	AttachedGeoFences []string `json:"attachedGeoFences"`
	MaxFence          int      `json:"maxFence"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// OwnedBy reports whether userID owns the device.
func (d *Device) OwnedBy(userID string) bool {
	return d.UserID != nil && *d.UserID == userID
}

// HasGeoFence reports whether fenceID is attached.
func (d *Device) HasGeoFence(fenceID string) bool {
	for _, id := range d.AttachedGeoFences {
		if id == fenceID {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices with d.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	cpy.AttachedGeoFences = append([]string(nil), d.AttachedGeoFences...)
	return &cpy
}

// PoolFilter narrows ListPools. Zero values match everything.
type PoolFilter struct {
	Status PoolStatus
	Serial string // substring match
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	UserID       string
	AssignStatus AssignStatus
	Status       Status
	LiveStatus   LiveStatus
	Search       string // substring of serial, name, vehicle number or driver name
}

// Assignment is a conditional change of a device's ownership state, applied
// by Repository.CompareAndSwapAssignment. The change only happens when the
// device is currently in From, and, when set, the owner and quota guards hold.
type Assignment struct {
	Serial string
	From   AssignStatus
	To     AssignStatus
	Status Status

	// SetOwner writes Owner (nil clears it). Otherwise user_id is unchanged.
	SetOwner bool
	Owner    *string

	// RequireOwnerOrUnowned, when set, requires user_id to be NULL or equal.
	RequireOwnerOrUnowned string

	// DeviceLimit, when not negative, requires the new owner to hold fewer
	// than DeviceLimit other devices.
	DeviceLimit int

	// Approval stamps are always written; nil clears.
	ApprovedBy          *string
	ApprovedAt          *time.Time
	ApprovalRequestedAt *time.Time

	// Details replaces the descriptive fields when non-nil. ClearDetails
	// blanks them.
	Details      *Details
	ClearDetails bool
}

// NormalizeSerial upper-cases and trims a serial.
func NormalizeSerial(serial string) string {
	return strings.ToUpper(strings.TrimSpace(serial))
}
