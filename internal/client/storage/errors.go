package storage

import "github.com/cockroachdb/errors"

// Common client storage errors
var (
	// ErrIdentityNotFound indicates that no account identity exists
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrDumpNotFound indicates that config dump was not found
	ErrDumpNotFound = errors.New("config dump not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)
