package configstore

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/iudanet/confsync/internal/codec"
	"github.com/iudanet/confsync/internal/crdt"
	"github.com/iudanet/confsync/internal/models"
)

func populated(t *testing.T, ns models.Namespace) *Object {
	t.Helper()
	obj := NewObject(ns, testOwner)

	switch ns {
	case models.NamespaceContacts:
		require.NoError(t, NewContacts(obj).Update(testSessionID(1), func(c *models.Contact) error {
			c.Name = "Alice"
			c.Approved = true
			c.ExpirationMode = models.ExpirationAfterRead
			c.ExpirationTimer = time.Hour
			return nil
		}))
	case models.NamespaceUserGroups:
		groups := NewUserGroups(obj)
		require.NoError(t, groups.UpdateLegacyGroup(testSessionID(7), func(g *models.LegacyGroup) error {
			g.Name = "Group"
			g.Insert(testSessionID(1), true)
			return nil
		}))
		require.NoError(t, groups.SetCommunity(&models.Community{
			BaseURL: "https://example.com",
			Room:    "SomeRoom",
			PubKey:  make([]byte, 32),
		}))
	case models.NamespaceUserProfile:
		require.NoError(t, NewUserProfile(obj).SetName("Alice"))
	case models.NamespaceConvoInfoVolatile:
		require.NoError(t, NewConvoInfoVolatile(obj).SetOneToOne(&models.OneToOneVolatile{
			SessionID: testSessionID(1),
			ReadState: models.ReadState{LastReadMs: 1700000000000, Unread: true},
		}))
	default:
		require.NoError(t, obj.Edit(func(tx *Tx) error {
			tx.Set("info", "n", []byte("group info"))
			return nil
		}))
	}
	return obj
}

func documentOf(t *testing.T, obj *Object) *crdt.Document {
	t.Helper()
	var doc *crdt.Document
	require.NoError(t, obj.View(func(d *crdt.Document) error {
		doc = d.Clone()
		return nil
	}))
	return doc
}

func assertSameObject(t *testing.T, want, got *Object) {
	t.Helper()
	assert.Equal(t, want.Namespace(), got.Namespace())
	assert.Equal(t, want.Owner(), got.Owner())
	assert.Equal(t, want.Seqno(), got.Seqno())
	assert.Equal(t, want.CurrentHashes(), got.CurrentHashes())
	assert.Equal(t, want.ObsoleteHashes(), got.ObsoleteHashes())
	assert.Equal(t, want.NeedsPush(), got.NeedsPush())
	assert.True(t, documentOf(t, want).Equal(documentOf(t, got)))
}

func TestDump_RoundTrip(t *testing.T) {
	for _, ns := range models.AllNamespaces {
		t.Run(ns.String(), func(t *testing.T) {
			obj := populated(t, ns)
			pushAndConfirm(t, obj, "h1", true)

			data, gen, err := obj.Dump()
			require.NoError(t, err)
			obj.MarkDumped(gen)

			restored, err := Restore(data)
			require.NoError(t, err)
			assertSameObject(t, obj, restored)
			assert.Equal(t, StateClean, restored.State())
			assert.False(t, restored.NeedsDump())

			again, _, err := restored.Dump()
			require.NoError(t, err)
			assert.Equal(t, data, again)
		})
	}
}

func TestDump_KeepsUnpushedChanges(t *testing.T) {
	obj := populated(t, models.NamespaceUserProfile)
	pushAndConfirm(t, obj, "h1", true)
	setName(t, obj, "changed after push")

	data, _, err := obj.Dump()
	require.NoError(t, err)

	restored, err := Restore(data)
	require.NoError(t, err)
	assert.True(t, restored.NeedsPush(), "unpushed edits must survive a restart")
	assert.False(t, restored.NeedsDump())

	push, err := restored.ComputePush(testSealer(restored.Namespace()))
	require.NoError(t, err)
	assert.Equal(t, int64(2), push.Seqno)
}

func TestDump_MarkDumpedStaleGeneration(t *testing.T) {
	obj := populated(t, models.NamespaceUserProfile)

	_, gen, err := obj.Dump()
	require.NoError(t, err)

	setName(t, obj, "edited while writing dump")
	obj.MarkDumped(gen)
	assert.True(t, obj.NeedsDump(), "state changed after Dump must stay dirty")
}

func TestDump_UnknownFieldsPassthrough(t *testing.T) {
	obj := populated(t, models.NamespaceUserProfile)
	data, _, err := obj.Dump()
	require.NoError(t, err)

	data = protowire.AppendTag(data, 42, protowire.BytesType)
	data = protowire.AppendString(data, "from a newer minor version")

	restored, err := Restore(data)
	require.NoError(t, err)

	again, _, err := restored.Dump()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestRestore_Invalid(t *testing.T) {
	valid, _, err := populated(t, models.NamespaceContacts).Dump()
	require.NoError(t, err)

	versionOnly := protowire.AppendTag(nil, dumpVersionNum, protowire.VarintType)
	versionOnly = protowire.AppendVarint(versionOnly, DumpVersion)

	future := protowire.AppendTag(nil, dumpVersionNum, protowire.VarintType)
	future = protowire.AppendVarint(future, DumpVersion+1)
	future = append(future, valid[2:]...)

	badDoc := append([]byte(nil), versionOnly...)
	badDoc = protowire.AppendTag(badDoc, dumpNamespaceNum, protowire.VarintType)
	badDoc = protowire.AppendVarint(badDoc, uint64(models.NamespaceContacts))
	badDoc = protowire.AppendTag(badDoc, dumpDocumentNum, protowire.BytesType)
	badDoc = protowire.AppendBytes(badDoc, []byte{0x0a})

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "truncated", data: valid[:len(valid)-5]},
		{name: "missing document", data: versionOnly},
		{name: "future version", data: future},
		{name: "corrupt document", data: badDoc},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := Restore(tt.data)
			require.True(t, errors.Is(err, ErrInvalidDump), "%v", err)
			assert.Nil(t, obj)
		})
	}

	_, err = Restore(badDoc)
	require.True(t, errors.Is(err, codec.ErrParse), "%v", err)
}
