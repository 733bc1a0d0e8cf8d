package geofence

import "errors"

var (
	// ErrFenceNotFound is returned when no fence matches the lookup, including
	// fences owned by another user.
	ErrFenceNotFound = errors.New("geofence: not found")

	// ErrInvalidName is returned when a fence name is empty or too long.
	ErrInvalidName = errors.New("geofence: invalid name")

	// ErrInvalidGeometry is returned when the geometry is not an object with a known type.
	ErrInvalidGeometry = errors.New("geofence: invalid geometry")
)
