package user

import "fmt"

// Upper bounds for the per-user quota overrides.
const (
	MaxDeviceOverride         = 1000
	MaxFencePerDeviceOverride = 100
)

// ValidateLimits checks a pair of quota overrides. NoOverride is always accepted.
func ValidateLimits(maxDevice, maxFencePerDevice int) error {
	if maxDevice < NoOverride || maxDevice > MaxDeviceOverride {
		return fmt.Errorf("%w: max device %d is outside %d..%d",
			ErrInvalidLimit, maxDevice, NoOverride, MaxDeviceOverride)
	}
	if maxFencePerDevice < NoOverride || maxFencePerDevice > MaxFencePerDeviceOverride {
		return fmt.Errorf("%w: max fence per device %d is outside %d..%d",
			ErrInvalidLimit, maxFencePerDevice, NoOverride, MaxFencePerDeviceOverride)
	}
	return nil
}
