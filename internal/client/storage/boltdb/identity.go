package boltdb

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"go.etcd.io/bbolt"

	"github.com/iudanet/confsync/internal/client/storage"
)

var identityKey = []byte("current")

// SaveIdentity stores account identity
func (s *Storage) SaveIdentity(ctx context.Context, identity *storage.IdentityData) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketIdentity)
		if bucket == nil {
			return errors.New("identity bucket not found")
		}

		// Сериализуем данные в JSON
		data, err := json.Marshal(identity)
		if err != nil {
			return errors.Wrap(err, "failed to marshal identity")
		}

		// Сохраняем в bucket
		if err := bucket.Put(identityKey, data); err != nil {
			return errors.Wrap(err, "failed to save identity")
		}

		return nil
	})
}

// GetIdentity retrieves stored account identity
func (s *Storage) GetIdentity(ctx context.Context) (*storage.IdentityData, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var identity *storage.IdentityData

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketIdentity)
		if bucket == nil {
			return errors.New("identity bucket not found")
		}

		// Получаем данные
		data := bucket.Get(identityKey)
		if data == nil {
			return storage.ErrIdentityNotFound
		}

		// Десериализуем
		identity = &storage.IdentityData{}
		if err := json.Unmarshal(data, identity); err != nil {
			return errors.Wrap(err, "failed to unmarshal identity")
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return identity, nil
}

// DeleteIdentity removes stored identity together with all dumps and sync metadata
func (s *Storage) DeleteIdentity(ctx context.Context) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketIdentity)
		if bucket == nil {
			return errors.New("identity bucket not found")
		}

		// Проверяем существование данных
		if bucket.Get(identityKey) == nil {
			return storage.ErrIdentityNotFound
		}

		if err := bucket.Delete(identityKey); err != nil {
			return errors.Wrap(err, "failed to delete identity")
		}

		// Состояние синхронизации принадлежит удаленной учетной записи
		for _, name := range [][]byte{bucketDumps, bucketMetadata} {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return errors.Wrapf(err, "failed to clear %s bucket", name)
				}
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return errors.Wrapf(err, "failed to recreate %s bucket", name)
			}
		}

		return nil
	})
}

// HasIdentity checks if account identity exists
func (s *Storage) HasIdentity(ctx context.Context) (bool, error) {
	_, err := s.GetIdentity(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrIdentityNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
