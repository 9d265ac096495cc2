package store

import "errors"

var (
	// ErrNotFound is returned when a user or document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a unique value (e.g. username) is already taken.
	ErrConflict = errors.New("already exists")
)
