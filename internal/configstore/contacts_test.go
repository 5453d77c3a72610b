package configstore

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/confsync/internal/models"
)

func TestContacts_GetOrConstruct(t *testing.T) {
	contacts := NewContacts(NewObject(models.NamespaceContacts, testOwner))

	contact, err := contacts.GetOrConstruct(testSessionID(1))
	require.NoError(t, err)
	assert.Equal(t, testSessionID(1), contact.SessionID)
	assert.False(t, contacts.Object().NeedsPush(), "construction without mutation is not a change")

	_, err = contacts.Get(testSessionID(1))
	require.True(t, errors.Is(err, ErrNotFound), "%v", err)

	_, err = contacts.GetOrConstruct("not-a-session-id")
	require.True(t, errors.Is(err, ErrInvalidKey), "%v", err)
}

func TestContacts_SetGet(t *testing.T) {
	contacts := NewContacts(NewObject(models.NamespaceContacts, testOwner))

	contact := models.NewContact(testSessionID(1))
	contact.Name = "Alice"
	contact.Nickname = "Al"
	contact.Approved = true
	contact.ApprovedMe = true
	contact.Priority = 2
	contact.Picture = models.ProfilePicture{URL: "https://example.com/pic", Key: make([]byte, 32)}
	require.NoError(t, contacts.Set(contact))
	assert.True(t, contacts.Object().NeedsPush())

	got, err := contacts.Get(testSessionID(1))
	require.NoError(t, err)
	assert.Equal(t, contact, got)
	assert.Equal(t, "Al", got.DisplayName())
}

func TestContacts_SetUnchangedIsNoop(t *testing.T) {
	obj := NewObject(models.NamespaceContacts, testOwner)
	contacts := NewContacts(obj)

	require.NoError(t, contacts.Update(testSessionID(1), func(c *models.Contact) error {
		c.Name = "Alice"
		return nil
	}))
	pushAndConfirm(t, obj, "h1", true)
	_, gen, err := obj.Dump()
	require.NoError(t, err)
	obj.MarkDumped(gen)

	contact, err := contacts.Get(testSessionID(1))
	require.NoError(t, err)
	require.NoError(t, contacts.Set(contact))
	assert.Equal(t, StateClean, obj.State())
}

func TestContacts_EraseIsIdempotent(t *testing.T) {
	obj := NewObject(models.NamespaceContacts, testOwner)
	contacts := NewContacts(obj)

	require.NoError(t, contacts.Update(testSessionID(1), func(c *models.Contact) error {
		c.Name = "Alice"
		return nil
	}))
	require.NoError(t, contacts.Update(testSessionID(2), func(c *models.Contact) error {
		c.Name = "Bob"
		return nil
	}))
	pushAndConfirm(t, obj, "h1", true)

	found, err := contacts.Erase(testSessionID(1))
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, obj.NeedsPush())
	pushAndConfirm(t, obj, "h2", true)

	found, err = contacts.Erase(testSessionID(1))
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, obj.NeedsPush(), "second erase must be a no-op")

	visible := Collect(contacts.Iterate(Visible[*models.Contact]))
	require.Len(t, visible, 1)
	assert.Equal(t, "Bob", visible[0].Name)
	assert.Len(t, Collect(contacts.Iterate(nil)), 2)

	found, err = contacts.Erase(testSessionID(9))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestContacts_IterateRestartable(t *testing.T) {
	contacts := NewContacts(NewObject(models.NamespaceContacts, testOwner))
	for i := 1; i <= 3; i++ {
		require.NoError(t, contacts.Update(testSessionID(i), func(c *models.Contact) error {
			c.Approved = true
			return nil
		}))
	}

	seq := contacts.Iterate(func(c *models.Contact) bool { return c.Approved })
	assert.Len(t, Collect(seq), 3)

	// Изменения во время обхода не блокируются
	for c := range seq {
		require.NoError(t, contacts.Update(c.SessionID, func(c *models.Contact) error {
			c.Blocked = true
			return nil
		}))
		break
	}

	assert.Len(t, Collect(seq), 3, "the same sequence can be iterated again")
	blocked := Collect(contacts.Iterate(func(c *models.Contact) bool { return c.Blocked }))
	require.Len(t, blocked, 1)
	assert.Equal(t, testSessionID(1), blocked[0].SessionID)
}

func TestContacts_MergeConflictingEdits(t *testing.T) {
	device1 := NewObject(models.NamespaceContacts, testOwner)
	device2 := NewObject(models.NamespaceContacts, testOwner)

	require.NoError(t, NewContacts(device1).Update(testSessionID(1), func(c *models.Contact) error {
		c.Name = "Alice"
		c.Blocked = true
		return nil
	}))
	require.NoError(t, NewContacts(device2).Update(testSessionID(1), func(c *models.Contact) error {
		c.Name = "Alicia"
		c.Approved = true
		return nil
	}))
	r1 := remoteFrom(t, device1, "h1")
	r2 := remoteFrom(t, device2, "h2")

	_, err := device1.Merge([]Remote{r2})
	require.NoError(t, err)
	_, err = device2.Merge([]Remote{r1})
	require.NoError(t, err)

	c1, err := NewContacts(device1).Get(testSessionID(1))
	require.NoError(t, err)
	c2, err := NewContacts(device2).Get(testSessionID(1))
	require.NoError(t, err)

	assert.Equal(t, c1, c2, "both devices converge")
	assert.Equal(t, "Alicia", c1.Name, "equal seqno is resolved by value bytes")
	assert.True(t, c1.Blocked)
	assert.True(t, c1.Approved)
}
