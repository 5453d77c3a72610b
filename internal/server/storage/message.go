package storage

import (
	"context"
	"time"
)

// MaxMessageSize - максимальный размер одного сообщения в swarm.
const MaxMessageSize = 76800

// Message - конфигурационное сообщение, сохраненное в swarm.
type Message struct {
	StoredAt  time.Time
	PubKey    string
	Hash      string
	Data      []byte
	ID        int64 // монотонный номер в пределах узла, используется как курсор
	Seqno     int64
	Namespace int
}

// StoreResult - результат сохранения одного сообщения batch.
type StoreResult struct {
	Err  error
	Hash string
}

// MessageStorage defines interface for swarm message persistence
type MessageStorage interface {
	// StoreBatch deletes the listed hashes and stores messages in one transaction.
	// Invalid messages are reported per item and are not stored; the rest of the
	// batch is committed or rolled back as a whole.
	// Returns results in the order of messages and the hashes that are no longer stored.
	StoreBatch(ctx context.Context, pubkey string, messages []*Message, deletes []string) ([]StoreResult, []string, error)

	// Retrieve returns messages of the namespace with ID greater than since, ordered by ID
	Retrieve(ctx context.Context, pubkey string, namespace int, since int64, limit int) ([]*Message, error)

	// Cursor returns the greatest message ID stored for the namespace (0 if none)
	Cursor(ctx context.Context, pubkey string, namespace int) (int64, error)

	// Get returns message by hash
	// Returns ErrMessageNotFound if message doesn't exist
	Get(ctx context.Context, pubkey, hash string) (*Message, error)
}
