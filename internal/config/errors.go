package config

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist in the store.
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedDriver is returned by Open for drivers without a dialect.
	ErrUnsupportedDriver = errors.New("unsupported store driver")
)
