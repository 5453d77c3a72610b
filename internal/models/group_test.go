package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLegacyGroup_Members(t *testing.T) {
	g := NewLegacyGroup("05" + "00")

	assert.True(t, g.Insert("a", false))
	assert.True(t, g.Insert("b", true))
	assert.False(t, g.Insert("a", false), "повторная вставка без изменений")
	assert.True(t, g.Insert("a", true), "смена флага администратора")

	members, admins := g.Counts()
	assert.Equal(t, 0, members)
	assert.Equal(t, 2, admins)

	assert.True(t, g.Erase("a"))
	assert.False(t, g.Erase("a"))
	assert.Equal(t, []string{"b"}, g.SortedMembers())
}

func TestLegacyGroup_Clone(t *testing.T) {
	g := NewLegacyGroup("id")
	g.Insert("a", true)
	g.EncPubKey = []byte{1, 2, 3}

	clone := g.Clone()
	clone.Insert("b", false)
	clone.EncPubKey[0] = 9

	assert.Len(t, g.Members, 1)
	assert.Equal(t, byte(1), g.EncPubKey[0])
}

func TestIsHidden(t *testing.T) {
	assert.True(t, IsHidden(PriorityHidden))
	assert.False(t, IsHidden(PriorityUnpinned))
	assert.False(t, IsHidden(5))
}
