package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a guarded update found the record in a different
	// state than expected, or an insert violated a uniqueness constraint.
	ErrConflict = errors.New("repository: conflict")
)
