package fencing

import "errors"

var (
	// ErrAlreadyAttached is returned when the fence already lists the device.
	ErrAlreadyAttached = errors.New("fencing: already attached")

	// ErrNotAttached is returned when detaching a fence that is not linked to the device.
	ErrNotAttached = errors.New("fencing: not attached")
)
