package storage

import "github.com/cockroachdb/errors"

// Common storage errors
var (
	// ErrMessageNotFound indicates that message with this hash is not stored
	ErrMessageNotFound = errors.New("message not found")

	// ErrInvalidMessage indicates that message cannot be stored (empty, too large, unknown namespace)
	ErrInvalidMessage = errors.New("invalid message")

	// ErrStorageClosed indicates that storage was already closed
	ErrStorageClosed = errors.New("storage is closed")
)
