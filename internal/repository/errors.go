package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrStaleVersion is returned when an optimistic update lost a race
	// with a concurrent write.
	ErrStaleVersion = errors.New("stale entity version")
)
