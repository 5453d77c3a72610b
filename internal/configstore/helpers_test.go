package configstore

import (
	"crypto/ed25519"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iudanet/confsync/internal/codec"
	"github.com/iudanet/confsync/internal/crdt"
	"github.com/iudanet/confsync/internal/models"
)

const testOwner = "0000000000000000000000000000000000000000000000000000000000000001"

func testSessionID(n int) string {
	return "05" + fmt.Sprintf("%064x", n)
}

func testSealer(ns models.Namespace) *codec.Sealer {
	seed := make([]byte, ed25519.SeedSize)
	key := ed25519.NewKeyFromSeed(seed)
	return &codec.Sealer{
		Namespace:  ns,
		SigningKey: key,
		VerifyKeys: []ed25519.PublicKey{key.Public().(ed25519.PublicKey)},
		Limits:     LimitsFor(ns),
	}
}

// pushAndConfirm выполняет полный цикл push с заданным хешем.
func pushAndConfirm(t *testing.T, obj *Object, hash string, deleteSucceeded bool) *PushData {
	t.Helper()

	push, err := obj.ComputePush(testSealer(obj.Namespace()))
	require.NoError(t, err)

	var deleted []string
	if deleteSucceeded {
		deleted = push.ObsoleteHashes
	}
	require.NoError(t, obj.ConfirmPush(push.Seqno, hash, deleted))
	return push
}

// remoteFrom превращает состояние объекта в удаленное сообщение, как его увидит другое устройство.
func remoteFrom(t *testing.T, obj *Object, hash string) Remote {
	t.Helper()

	sealer := testSealer(obj.Namespace())
	var payload []byte
	require.NoError(t, obj.View(func(doc *crdt.Document) error {
		var err error
		payload, err = sealer.Seal(obj.Seqno(), doc)
		return err
	}))
	msg, err := sealer.Open(payload)
	require.NoError(t, err)

	return Remote{Hash: hash, Seqno: msg.Seqno, Document: msg.Document}
}

func longString(n int) string {
	return strings.Repeat("x", n)
}
