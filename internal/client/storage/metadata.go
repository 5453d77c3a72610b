package storage

import (
	"context"

	"github.com/iudanet/confsync/internal/models"
)

// MetadataStorage defines interface for storing client sync metadata
type MetadataStorage interface {
	// SaveLastSyncTimestamp saves the timestamp of the last successful sync
	SaveLastSyncTimestamp(ctx context.Context, timestamp int64) error

	// GetLastSyncTimestamp retrieves the timestamp of the last successful sync
	// Returns 0 if no sync has been performed yet
	GetLastSyncTimestamp(ctx context.Context) (int64, error)

	// SaveCursor saves the fetch cursor for a swarm namespace
	SaveCursor(ctx context.Context, destination string, namespace models.Namespace, cursor int64) error

	// GetCursor returns the fetch cursor, 0 if nothing was fetched yet
	GetCursor(ctx context.Context, destination string, namespace models.Namespace) (int64, error)

	// SavePendingDeletions replaces the backlog of hashes to delete from a swarm
	SavePendingDeletions(ctx context.Context, destination string, hashes []string) error

	// GetPendingDeletions returns the backlog of hashes to delete from a swarm
	GetPendingDeletions(ctx context.Context, destination string) ([]string, error)
}
