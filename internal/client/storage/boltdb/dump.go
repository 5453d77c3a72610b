package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.etcd.io/bbolt"

	"github.com/iudanet/confsync/internal/client/storage"
	"github.com/iudanet/confsync/internal/crypto"
	"github.com/iudanet/confsync/internal/models"
)

// dumpRecord - значение в bucket dumps
type dumpRecord struct {
	Data      []byte `json:"data"`
	SavedAt   int64  `json:"saved_at"`
	Encrypted bool   `json:"encrypted"`
}

// dumpKey строит ключ вида <owner>|<namespace>; namespace дополняется нулями,
// чтобы курсор обходил dump'ы одного владельца по возрастанию namespace.
func dumpKey(namespace models.Namespace, owner string) []byte {
	return []byte(fmt.Sprintf("%s|%05d", owner, int(namespace)))
}

func parseDumpKey(key []byte) (models.Namespace, string, error) {
	owner, ns, ok := strings.Cut(string(key), "|")
	if !ok {
		return 0, "", errors.Newf("malformed dump key %q", key)
	}
	num, err := strconv.Atoi(ns)
	if err != nil {
		return 0, "", errors.Wrapf(err, "malformed dump key %q", key)
	}
	return models.Namespace(num), owner, nil
}

// SaveDump stores or replaces a config dump
func (s *Storage) SaveDump(ctx context.Context, namespace models.Namespace, owner string, data []byte) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	record := dumpRecord{Data: data, SavedAt: time.Now().UnixMilli()}
	if s.dumpKey != nil {
		encrypted, err := crypto.Encrypt(data, s.dumpKey)
		if err != nil {
			return errors.Wrap(err, "failed to encrypt dump")
		}
		record.Data = encrypted
		record.Encrypted = true
	}

	// Сериализуем record в JSON
	value, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "failed to marshal dump")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketDumps)
		if bucket == nil {
			return errors.New("dumps bucket not found")
		}
		if err := bucket.Put(dumpKey(namespace, owner), value); err != nil {
			return errors.Wrap(err, "failed to save dump")
		}
		return nil
	})
}

// GetDump retrieves a config dump
func (s *Storage) GetDump(ctx context.Context, namespace models.Namespace, owner string) ([]byte, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var record dumpRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketDumps)
		if bucket == nil {
			return errors.New("dumps bucket not found")
		}

		value := bucket.Get(dumpKey(namespace, owner))
		if value == nil {
			return storage.ErrDumpNotFound
		}

		// Десериализуем
		if err := json.Unmarshal(value, &record); err != nil {
			return errors.Wrap(err, "failed to unmarshal dump")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !record.Encrypted {
		return record.Data, nil
	}
	if s.dumpKey == nil {
		return nil, errors.Newf("dump %s is encrypted, storage is locked", namespace)
	}
	data, err := crypto.Decrypt(record.Data, s.dumpKey)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decrypt dump %s", namespace)
	}
	return data, nil
}

// ListDumps returns all stored dumps ordered by owner and namespace
func (s *Storage) ListDumps(ctx context.Context) ([]storage.DumpInfo, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var infos []storage.DumpInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketDumps)
		if bucket == nil {
			return errors.New("dumps bucket not found")
		}

		return bucket.ForEach(func(k, v []byte) error {
			namespace, owner, err := parseDumpKey(k)
			if err != nil {
				return err
			}
			var record dumpRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return errors.Wrapf(err, "failed to unmarshal dump %s", k)
			}
			infos = append(infos, storage.DumpInfo{
				Namespace: namespace,
				Owner:     owner,
				Size:      len(record.Data),
				SavedAt:   time.UnixMilli(record.SavedAt).UTC(),
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// DeleteDump removes a config dump
func (s *Storage) DeleteDump(ctx context.Context, namespace models.Namespace, owner string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketDumps)
		if bucket == nil {
			return errors.New("dumps bucket not found")
		}
		if err := bucket.Delete(dumpKey(namespace, owner)); err != nil {
			return errors.Wrap(err, "failed to delete dump")
		}
		return nil
	})
}
