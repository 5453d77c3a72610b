package merge

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iudanet/confsync/internal/codec"
	"github.com/iudanet/confsync/internal/configstore"
	"github.com/iudanet/confsync/internal/crdt"
	"github.com/iudanet/confsync/internal/models"
)

const owner = "0000000000000000000000000000000000000000000000000000000000000001"

func sessionID(n int) string {
	return "05" + fmt.Sprintf("%064x", n)
}

func sealerFor(ns models.Namespace, seedByte byte) *codec.Sealer {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = seedByte
	key := ed25519.NewKeyFromSeed(seed)
	return &codec.Sealer{
		Namespace:     ns,
		SigningKey:    key,
		VerifyKeys:    []ed25519.PublicKey{key.Public().(ed25519.PublicKey)},
		EncryptionKey: make([]byte, 32),
		Limits:        configstore.LimitsFor(ns),
	}
}

// push отправляет состояние устройства и возвращает сообщение, как его хранит swarm.
func push(t *testing.T, obj *configstore.Object) RemoteMessage {
	t.Helper()
	data, err := obj.ComputePush(sealerFor(obj.Namespace(), 1))
	require.NoError(t, err)
	hash := codec.MessageHash(data.Payload)
	require.NoError(t, obj.ConfirmPush(data.Seqno, hash, data.ObsoleteHashes))
	return RemoteMessage{Hash: hash, Payload: data.Payload}
}

func documentOf(t *testing.T, obj *configstore.Object) *crdt.Document {
	t.Helper()
	var doc *crdt.Document
	require.NoError(t, obj.View(func(d *crdt.Document) error {
		doc = d.Clone()
		return nil
	}))
	return doc
}

type recordingListener struct {
	merged    []Event
	confirmed []Event
	mu        sync.Mutex
}

func (l *recordingListener) OnMergeCompleted(_ context.Context, event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.merged = append(l.merged, event)
}

func (l *recordingListener) OnPushConfirmed(_ context.Context, event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.confirmed = append(l.confirmed, event)
}

// devices готовит три устройства с конкурентными изменениями групп.
func devices(t *testing.T) (local *configstore.Object, a, b RemoteMessage) {
	t.Helper()
	groupID := sessionID(100)

	local = configstore.NewObject(models.NamespaceUserGroups, owner)
	require.NoError(t, configstore.NewUserGroups(local).UpdateLegacyGroup(groupID, func(g *models.LegacyGroup) error {
		g.Name = "Local"
		g.Insert(sessionID(1), true)
		return nil
	}))

	devA := configstore.NewObject(models.NamespaceUserGroups, owner)
	require.NoError(t, configstore.NewUserGroups(devA).UpdateLegacyGroup(groupID, func(g *models.LegacyGroup) error {
		g.Name = "From A"
		g.Insert(sessionID(2), false)
		g.Priority = 2
		return nil
	}))
	require.NoError(t, configstore.NewUserGroups(devA).SetCommunity(&models.Community{
		BaseURL: "https://example.com", Room: "Lobby", PubKey: make([]byte, 32),
	}))

	devB := configstore.NewObject(models.NamespaceUserGroups, owner)
	require.NoError(t, configstore.NewUserGroups(devB).UpdateLegacyGroup(groupID, func(g *models.LegacyGroup) error {
		g.Name = "From B"
		g.Insert(sessionID(3), true)
		return nil
	}))
	setName := func(name string) func(g *models.LegacyGroup) error {
		return func(g *models.LegacyGroup) error {
			g.Name = name
			return nil
		}
	}
	push(t, devB)
	require.NoError(t, configstore.NewUserGroups(devB).UpdateLegacyGroup(groupID, setName("From B again")))

	return local, push(t, devA), push(t, devB)
}

func TestEngine_MergeCommutative(t *testing.T) {
	engine := NewEngine(zap.NewNop(), nil)
	opener := sealerFor(models.NamespaceUserGroups, 1)
	ctx := context.Background()

	x, a, b := devices(t)
	y, _, _ := devices(t)

	_, err := engine.Merge(ctx, x, opener, []RemoteMessage{a})
	require.NoError(t, err)
	_, err = engine.Merge(ctx, x, opener, []RemoteMessage{b})
	require.NoError(t, err)

	_, err = engine.Merge(ctx, y, opener, []RemoteMessage{b})
	require.NoError(t, err)
	_, err = engine.Merge(ctx, y, opener, []RemoteMessage{a})
	require.NoError(t, err)

	assert.True(t, documentOf(t, x).Equal(documentOf(t, y)), "merge order must not matter")

	group, err := configstore.NewUserGroups(x).LegacyGroup(sessionID(100))
	require.NoError(t, err)
	assert.Equal(t, "From B again", group.Name, "highest seqno wins")
	assert.Len(t, group.Members, 3)
	assert.Equal(t, int64(2), group.Priority)
	assert.Len(t, configstore.Collect(configstore.NewUserGroups(x).Communities(nil)), 1)
}

func TestEngine_MergeIdempotent(t *testing.T) {
	engine := NewEngine(zap.NewNop(), nil)
	opener := sealerFor(models.NamespaceUserGroups, 1)
	ctx := context.Background()

	x, a, b := devices(t)
	_, err := engine.Merge(ctx, x, opener, []RemoteMessage{a, b})
	require.NoError(t, err)
	once := documentOf(t, x)

	result, err := engine.Merge(ctx, x, opener, []RemoteMessage{a, b})
	require.NoError(t, err)
	assert.Empty(t, result.Outcome.Changed)
	assert.True(t, once.Equal(documentOf(t, x)))
}

func TestEngine_MergeDiscardsInvalid(t *testing.T) {
	listener := &recordingListener{}
	engine := NewEngine(zap.NewNop(), listener)
	opener := sealerFor(models.NamespaceUserGroups, 1)
	ctx := context.Background()

	x, a, _ := devices(t)

	// Сообщение, подписанное чужим ключом
	stranger := configstore.NewObject(models.NamespaceUserGroups, owner)
	require.NoError(t, configstore.NewUserGroups(stranger).UpdateLegacyGroup(sessionID(100), func(g *models.LegacyGroup) error {
		g.Name = "Hijacked"
		return nil
	}))
	forged, err := stranger.ComputePush(sealerFor(models.NamespaceUserGroups, 9))
	require.NoError(t, err)

	corrupt := append([]byte(nil), a.Payload...)
	corrupt[len(corrupt)/2] ^= 0xff

	result, err := engine.Merge(ctx, x, opener, []RemoteMessage{
		{Hash: "forged", Payload: forged.Payload},
		{Hash: "corrupt", Payload: corrupt},
		{Hash: "empty", Payload: nil},
		a,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"forged", "corrupt", "empty"}, result.Discarded)

	group, err := configstore.NewUserGroups(x).LegacyGroup(sessionID(100))
	require.NoError(t, err)
	assert.NotEqual(t, "Hijacked", group.Name)
	// Одинаковый seqno: побеждает большее значение
	assert.Equal(t, "Local", group.Name)
	assert.Contains(t, group.Members, sessionID(2), "valid remote still contributes")
	assert.Equal(t, int64(2), group.Priority)

	require.Len(t, listener.merged, 1)
	assert.Equal(t, models.NamespaceUserGroups, listener.merged[0].Namespace)
	assert.NotEmpty(t, listener.merged[0].Changed)
	assert.Contains(t, listener.merged[0].Hashes, a.Hash)
}

func TestEngine_NoChangesNoNotification(t *testing.T) {
	listener := &recordingListener{}
	engine := NewEngine(zap.NewNop(), listener)
	opener := sealerFor(models.NamespaceUserProfile, 1)

	obj := configstore.NewObject(models.NamespaceUserProfile, owner)
	result, err := engine.Merge(context.Background(), obj, opener, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Outcome.Changed)
	assert.Empty(t, listener.merged)

	engine.NotifyPushConfirmed(context.Background(), obj, []string{"h1"})
	require.Len(t, listener.confirmed, 1)
	assert.Equal(t, []string{"h1"}, listener.confirmed[0].Hashes)
}

func TestEngine_NilObject(t *testing.T) {
	engine := NewEngine(zap.NewNop(), nil)
	_, err := engine.Merge(context.Background(), nil, sealerFor(models.NamespaceContacts, 1), nil)
	require.True(t, errors.Is(err, configstore.ErrNilConfigObject), "%v", err)
}
