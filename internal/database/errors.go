package database

import "errors"

var (
	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("database: not found")
	// ErrStorageUnavailable indicates the backing store could not be opened
	// or a transaction could not be started or committed.
	ErrStorageUnavailable = errors.New("database: storage unavailable")
)
