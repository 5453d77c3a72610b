package boltdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.etcd.io/bbolt"

	"github.com/iudanet/confsync/internal/crypto"
)

var (
	// BoltDB bucket names
	bucketIdentity = []byte("identity")
	bucketDumps    = []byte("dumps")
	bucketMetadata = []byte("metadata")
)

// Storage represents BoltDB storage implementation for client
type Storage struct {
	db      *bbolt.DB
	dumpKey []byte
}

// Option настраивает Storage.
type Option func(*Storage)

// WithDumpKey включает шифрование dump'ов ключом AES-256.
func WithDumpKey(key []byte) Option {
	return func(s *Storage) {
		s.dumpKey = key
	}
}

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string, opts ...Option) (*Storage, error) {
	// Открываем BoltDB
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open boltdb")
	}

	storage := &Storage{db: db}
	for _, opt := range opts {
		opt(storage)
	}
	if storage.dumpKey != nil && len(storage.dumpKey) != crypto.KeySize {
		db.Close()
		return nil, errors.Newf("dump key must be %d bytes", crypto.KeySize)
	}

	// Инициализируем buckets
	if err := storage.initBuckets(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize buckets")
	}

	return storage, nil
}

// SetDumpKey включает шифрование dump'ов после разблокировки учетной записи.
func (s *Storage) SetDumpKey(key []byte) error {
	if len(key) != crypto.KeySize {
		return errors.Newf("dump key must be %d bytes", crypto.KeySize)
	}
	s.dumpKey = key
	return nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketIdentity, bucketDumps, bucketMetadata} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return errors.Wrapf(err, "failed to create %s bucket", name)
			}
		}
		return nil
	})
}
