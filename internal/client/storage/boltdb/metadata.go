package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"go.etcd.io/bbolt"

	"github.com/iudanet/confsync/internal/client/storage"
	"github.com/iudanet/confsync/internal/models"
)

const (
	keyLastSyncTimestamp = "last_sync_timestamp"
	prefixCursor         = "cursor:"
	prefixPending        = "pending:"
)

func cursorKey(destination string, namespace models.Namespace) []byte {
	return []byte(fmt.Sprintf("%s%s|%d", prefixCursor, destination, int(namespace)))
}

func pendingKey(destination string) []byte {
	return []byte(prefixPending + destination)
}

// SaveLastSyncTimestamp saves the timestamp of the last successful sync
func (s *Storage) SaveLastSyncTimestamp(ctx context.Context, timestamp int64) error {
	return s.putInt(keyLastSyncTimestamp, []byte(keyLastSyncTimestamp), timestamp)
}

// GetLastSyncTimestamp retrieves the timestamp of the last successful sync
// Returns 0 if no sync has been performed yet
func (s *Storage) GetLastSyncTimestamp(ctx context.Context) (int64, error) {
	return s.getInt(keyLastSyncTimestamp, []byte(keyLastSyncTimestamp))
}

// SaveCursor saves the fetch cursor for a swarm namespace
func (s *Storage) SaveCursor(ctx context.Context, destination string, namespace models.Namespace, cursor int64) error {
	return s.putInt("cursor", cursorKey(destination, namespace), cursor)
}

// GetCursor returns the fetch cursor for a swarm namespace
func (s *Storage) GetCursor(ctx context.Context, destination string, namespace models.Namespace) (int64, error) {
	return s.getInt("cursor", cursorKey(destination, namespace))
}

// SavePendingDeletions replaces the deletion backlog of a swarm
func (s *Storage) SavePendingDeletions(ctx context.Context, destination string, hashes []string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return errors.New("metadata bucket not found")
		}

		if len(hashes) == 0 {
			return bucket.Delete(pendingKey(destination))
		}

		data, err := json.Marshal(hashes)
		if err != nil {
			return errors.Wrap(err, "failed to marshal pending deletions")
		}
		if err := bucket.Put(pendingKey(destination), data); err != nil {
			return errors.Wrap(err, "failed to save pending deletions")
		}
		return nil
	})
}

// GetPendingDeletions returns the deletion backlog of a swarm
func (s *Storage) GetPendingDeletions(ctx context.Context, destination string) ([]string, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var hashes []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return errors.New("metadata bucket not found")
		}

		data := bucket.Get(pendingKey(destination))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &hashes); err != nil {
			return errors.Wrap(err, "failed to unmarshal pending deletions")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

func (s *Storage) putInt(what string, key []byte, v int64) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return errors.New("metadata bucket not found")
		}

		// Конвертируем int64 в bytes
		value := make([]byte, 8)
		binary.BigEndian.PutUint64(value, uint64(v))

		if err := bucket.Put(key, value); err != nil {
			return errors.Wrapf(err, "failed to save %s", what)
		}
		return nil
	})
}

func (s *Storage) getInt(what string, key []byte) (int64, error) {
	if s.db == nil {
		return 0, storage.ErrStorageClosed
	}

	var v int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return errors.New("metadata bucket not found")
		}

		value := bucket.Get(key)
		if value == nil {
			// Значение не сохранялось
			return nil
		}

		// Конвертируем bytes в int64
		v = int64(binary.BigEndian.Uint64(value))
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "failed to get %s", what)
	}
	return v, nil
}
