package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength    = 100
	maxContactLength = 32
	maxOtherLength   = 1024
)

// ValidateDetails checks the descriptive fields of a device.
// All fields are optional; lengths are bounded.
func ValidateDetails(d Details) error {
	fields := []struct {
		name  string
		value string
		max   int
	}{
		{"name", d.Name, maxNameLength},
		{"vehicle name", d.VehicleName, maxNameLength},
		{"vehicle number", d.VehicleNumber, maxNameLength},
		{"driver name", d.DriverName, maxNameLength},
		{"driver contact", d.DriverContact, maxContactLength},
		{"driver other details", d.DriverOtherDetails, maxOtherLength},
	}
	for _, f := range fields {
		if len(f.value) > f.max {
			return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidDetails, f.name, f.max)
		}
	}
	return nil
}

// TrimDetails strips surrounding whitespace from every field.
func TrimDetails(d Details) Details {
	return Details{
		Name:               strings.TrimSpace(d.Name),
		VehicleName:        strings.TrimSpace(d.VehicleName),
		VehicleNumber:      strings.TrimSpace(d.VehicleNumber),
		DriverName:         strings.TrimSpace(d.DriverName),
		DriverContact:      strings.TrimSpace(d.DriverContact),
		DriverOtherDetails: strings.TrimSpace(d.DriverOtherDetails),
	}
}

// ValidateMaxFence checks a per-device fence override.
func ValidateMaxFence(n int) error {
	if n < UnlimitedFences || n > MaxFenceOverride {
		return fmt.Errorf("%w: %d is outside %d..%d", ErrInvalidMaxFence, n, UnlimitedFences, MaxFenceOverride)
	}
	return nil
}

// ValidateStatus checks an operational status value.
func ValidateStatus(s Status) error {
	switch s {
	case StatusActive, StatusInactive:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// GenerateID creates a new row ID.
func GenerateID() string {
	return uuid.New().String()
}
