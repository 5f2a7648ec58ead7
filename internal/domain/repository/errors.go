package repository

import "errors"

var (
	// ErrNotFound is returned when a referenced ID is absent.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a create would duplicate a unique key.
	ErrConflict = errors.New("conflict")
)
