package storage

import (
	"context"
	"time"

	"github.com/iudanet/confsync/internal/models"
)

// DumpInfo описывает сохраненный dump объекта конфигурации.
type DumpInfo struct {
	SavedAt   time.Time        `json:"saved_at"`
	Owner     string           `json:"owner"`
	Namespace models.Namespace `json:"namespace"`
	Size      int              `json:"size"`
}

// DumpStorage defines interface for persisting config object dumps on client.
// Dumps are keyed by (namespace, owner public key).
type DumpStorage interface {
	// SaveDump stores or replaces a dump
	SaveDump(ctx context.Context, namespace models.Namespace, owner string, data []byte) error

	// GetDump retrieves a dump
	// Returns ErrDumpNotFound if dump doesn't exist
	GetDump(ctx context.Context, namespace models.Namespace, owner string) ([]byte, error)

	// ListDumps returns all stored dumps ordered by owner and namespace
	ListDumps(ctx context.Context) ([]DumpInfo, error)

	// DeleteDump removes a dump; missing dump is not an error
	DeleteDump(ctx context.Context, namespace models.Namespace, owner string) error
}
