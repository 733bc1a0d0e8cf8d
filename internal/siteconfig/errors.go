package siteconfig

import "errors"

var (
	// ErrConfigNotFound is returned when no setting has the key or ID.
	ErrConfigNotFound = errors.New("siteconfig: not found")

	// ErrConfigExists is returned when inserting a duplicate key.
	ErrConfigExists = errors.New("siteconfig: key already exists")

	// ErrUnknownKey is returned when writing a key that is not declared.
	ErrUnknownKey = errors.New("siteconfig: unknown key")

	// ErrInvalidValue is returned when a raw value does not match the declared type.
	ErrInvalidValue = errors.New("siteconfig: value does not match type")
)
