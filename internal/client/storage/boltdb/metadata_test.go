package boltdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/iudanet/confsync/internal/models"
)

func TestSaveAndGetLastSyncTimestamp(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	// Изначально, если timestamp не сохранён, ожидаем 0
	ts, err := store.GetLastSyncTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ts)

	// Сохраняем timestamp
	var expectedTS int64 = 1234567890
	err = store.SaveLastSyncTimestamp(ctx, expectedTS)
	require.NoError(t, err)

	// Получаем и проверяем
	gotTS, err := store.GetLastSyncTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, expectedTS, gotTS)
}

func TestGetLastSyncTimestamp_BucketMissing(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	// Удаляем bucket metadata напрямую
	err := store.db.Update(func(tx *bbolt.Tx) error {
		return tx.DeleteBucket(bucketMetadata)
	})
	require.NoError(t, err)

	// Попытка получить timestamp должна вернуть ошибку
	_, err = store.GetLastSyncTimestamp(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "metadata bucket not found")

	// Попытка сохранить timestamp тоже
	err = store.SaveLastSyncTimestamp(ctx, 42)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "metadata bucket not found")
}

func TestCursors(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	cursor, err := store.GetCursor(ctx, ownerA, models.NamespaceContacts)
	require.NoError(t, err)
	assert.Zero(t, cursor)

	require.NoError(t, store.SaveCursor(ctx, ownerA, models.NamespaceContacts, 17))
	require.NoError(t, store.SaveCursor(ctx, ownerA, models.NamespaceUserGroups, 3))
	require.NoError(t, store.SaveCursor(ctx, ownerB, models.NamespaceContacts, 99))

	cursor, err = store.GetCursor(ctx, ownerA, models.NamespaceContacts)
	require.NoError(t, err)
	assert.Equal(t, int64(17), cursor)

	cursor, err = store.GetCursor(ctx, ownerB, models.NamespaceContacts)
	require.NoError(t, err)
	assert.Equal(t, int64(99), cursor)
}

func TestPendingDeletions(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	pending, err := store.GetPendingDeletions(ctx, ownerA)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, store.SavePendingDeletions(ctx, ownerA, []string{"h1", "h2"}))
	pending, err = store.GetPendingDeletions(ctx, ownerA)
	require.NoError(t, err)
	assert.Equal(t, []string{"h1", "h2"}, pending)

	pending, err = store.GetPendingDeletions(ctx, ownerB)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Пустой список очищает backlog
	require.NoError(t, store.SavePendingDeletions(ctx, ownerA, nil))
	pending, err = store.GetPendingDeletions(ctx, ownerA)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
