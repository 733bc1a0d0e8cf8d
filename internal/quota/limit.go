package quota

import (
	"errors"

	"github.com/nerrad567/tracker-core/internal/apperror"
	"github.com/nerrad567/tracker-core/internal/infrastructure/metrics"
)

// Limit is a resource ceiling. Unlimited (or any negative value) means no ceiling.
type Limit int

// Unlimited disables a limit.
const Unlimited Limit = -1

// IsUnlimited reports whether l imposes no ceiling.
func (l Limit) IsUnlimited() bool {
	return l < 0
}

// Allows reports whether one more resource fits when used are already held.
func (l Limit) Allows(used int) bool {
	return l.IsUnlimited() || used < int(l)
}

// Usage pairs a limit with the amount currently used.
type Usage struct {
	Limit Limit `json:"limit"`
	Used  int   `json:"used"`
}

// Remaining returns how many more resources fit, or -1 when unlimited.
// It never goes below zero.
func (u Usage) Remaining() int {
	if u.Limit.IsUnlimited() {
		return int(Unlimited)
	}
	if r := int(u.Limit) - u.Used; r > 0 {
		return r
	}
	return 0
}

// Exhausted reports whether a new resource would exceed the limit.
func (u Usage) Exhausted() bool {
	return !u.Limit.Allows(u.Used)
}

// Quota kinds reported in metrics and errors.
const (
	KindDevice = "device"
	KindFence  = "fence"
)

var (
	// ErrDeviceLimitReached is returned when a user already holds the maximum number of devices.
	ErrDeviceLimitReached = errors.New("quota: device limit reached")

	// ErrFenceLimitReached is returned when a device already carries the maximum number of geofences.
	ErrFenceLimitReached = errors.New("quota: geofence limit reached")
)

// DeviceLimitExceeded records a device quota denial and returns the
// classified error for it.
func DeviceLimitExceeded() error {
	metrics.IncQuotaDenial(KindDevice)
	return apperror.NewQuotaExceeded("Device limit reached", ErrDeviceLimitReached)
}

// FenceLimitExceeded records a geofence quota denial and returns the
// classified error for it.
func FenceLimitExceeded() error {
	metrics.IncQuotaDenial(KindFence)
	return apperror.NewQuotaExceeded("Geofence limit reached for this device", ErrFenceLimitReached)
}
