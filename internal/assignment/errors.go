package assignment

import "errors"

// Domain errors for the assignment package. Service methods return them
// wrapped in an *apperror.Error.
var (
	// ErrAlreadyConfigured is returned when a pool row is already configured.
	ErrAlreadyConfigured = errors.New("assignment: already configured")

	// ErrAlreadyAssigned is returned when a device already has an approved owner.
	ErrAlreadyAssigned = errors.New("assignment: already assigned")

	// ErrRequestPending is returned when a device already waits for approval.
	ErrRequestPending = errors.New("assignment: request pending")

	// ErrNotOwner is returned when a device belongs to another user.
	ErrNotOwner = errors.New("assignment: not the owner")

	// ErrNotPending is returned when approving or rejecting a device that has no pending request.
	ErrNotPending = errors.New("assignment: no pending request")

	// ErrNotAssigned is returned when an operation needs an assigned device.
	ErrNotAssigned = errors.New("assignment: not assigned")

	// ErrStatusUnchanged is returned when a device already has the requested status.
	ErrStatusUnchanged = errors.New("assignment: status unchanged")

	// ErrDeviceInUse is returned when deleting a device that is assigned or pending.
	ErrDeviceInUse = errors.New("assignment: device in use")

	// ErrSerialExhausted is returned when no unique serial could be generated.
	ErrSerialExhausted = errors.New("assignment: could not generate a unique serial")
)
