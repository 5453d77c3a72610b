package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/iudanet/confsync/internal/codec"
	"github.com/iudanet/confsync/internal/models"
	"github.com/iudanet/confsync/internal/server/storage"
)

var _ storage.MessageStorage = (*Storage)(nil)

// StoreBatch deletes the listed hashes and stores messages in one transaction.
func (s *Storage) StoreBatch(ctx context.Context, pubkey string, messages []*storage.Message, deletes []string) ([]storage.StoreResult, []string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Сначала удаление: повторно сохраненное сообщение не должно пропасть
	for _, hash := range deletes {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE pubkey = ? AND hash = ?`, pubkey, hash); err != nil {
			return nil, nil, errors.Wrapf(err, "failed to delete message %s", hash)
		}
	}

	now := time.Now().UTC()
	stored := make(map[string]struct{}, len(messages))
	results := make([]storage.StoreResult, len(messages))

	for i, msg := range messages {
		if err := validateMessage(msg); err != nil {
			results[i].Err = err
			continue
		}

		hash := codec.MessageHash(msg.Data)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (pubkey, namespace, hash, seqno, data, stored_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (pubkey, hash) DO NOTHING
		`, pubkey, msg.Namespace, hash, msg.Seqno, msg.Data, now.UnixMilli())
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to insert message")
		}

		msg.PubKey = pubkey
		msg.Hash = hash
		msg.StoredAt = now
		results[i].Hash = hash
		stored[hash] = struct{}{}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, errors.Wrap(err, "failed to commit batch")
	}

	deleted := make([]string, 0, len(deletes))
	for _, hash := range deletes {
		if _, ok := stored[hash]; !ok {
			deleted = append(deleted, hash)
		}
	}
	return results, deleted, nil
}

// Retrieve returns messages of the namespace with ID greater than since, ordered by ID
func (s *Storage) Retrieve(ctx context.Context, pubkey string, namespace int, since int64, limit int) ([]*storage.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pubkey, namespace, hash, seqno, data, stored_at
		FROM messages
		WHERE pubkey = ? AND namespace = ? AND id > ?
		ORDER BY id
		LIMIT ?
	`, pubkey, namespace, since, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query messages")
	}
	defer func() {
		_ = rows.Close()
	}()

	messages := make([]*storage.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating messages")
	}

	return messages, nil
}

// Cursor returns the greatest message ID stored for the namespace (0 if none)
func (s *Storage) Cursor(ctx context.Context, pubkey string, namespace int) (int64, error) {
	var cursor sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(id) FROM messages WHERE pubkey = ? AND namespace = ?`,
		pubkey, namespace).Scan(&cursor)
	if err != nil {
		return 0, errors.Wrap(err, "failed to query cursor")
	}
	return cursor.Int64, nil
}

// Get returns message by hash
func (s *Storage) Get(ctx context.Context, pubkey, hash string) (*storage.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, pubkey, namespace, hash, seqno, data, stored_at
		FROM messages
		WHERE pubkey = ? AND hash = ?
	`, pubkey, hash)

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrMessageNotFound
		}
		return nil, err
	}
	return msg, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*storage.Message, error) {
	msg := &storage.Message{}
	var storedAt int64
	err := row.Scan(&msg.ID, &msg.PubKey, &msg.Namespace, &msg.Hash, &msg.Seqno, &msg.Data, &storedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan message")
	}
	msg.StoredAt = time.UnixMilli(storedAt).UTC()
	return msg, nil
}

func validateMessage(msg *storage.Message) error {
	switch {
	case len(msg.Data) == 0:
		return errors.Wrap(storage.ErrInvalidMessage, "empty message")
	case len(msg.Data) > storage.MaxMessageSize:
		return errors.Wrapf(storage.ErrInvalidMessage, "message size %d exceeds %d", len(msg.Data), storage.MaxMessageSize)
	case !models.Namespace(msg.Namespace).Valid():
		return errors.Wrapf(storage.ErrInvalidMessage, "unknown namespace %d", msg.Namespace)
	}
	return nil
}
