package user

import "errors"

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user: not found")

	// ErrInvalidLimit is returned when a quota override is out of range.
	ErrInvalidLimit = errors.New("user: invalid limit")
)
