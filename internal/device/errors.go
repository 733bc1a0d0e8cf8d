package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrPoolNotFound is returned when no pool row has the serial or ID.
	ErrPoolNotFound = errors.New("device: pool not found")

	// ErrPoolExists is returned when creating a pool row with a serial that already exists.
	ErrPoolExists = errors.New("device: pool already exists")

	// ErrDeviceNotFound is returned when no device has the serial or ID.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device with a serial that already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDetails is returned when descriptive fields fail validation.
	ErrInvalidDetails = errors.New("device: invalid details")

	// ErrInvalidMaxFence is returned when a fence override is outside -1..100.
	ErrInvalidMaxFence = errors.New("device: invalid max fence")

	// ErrInvalidStatus is returned when a status value is not recognised.
	ErrInvalidStatus = errors.New("device: invalid status")
)
