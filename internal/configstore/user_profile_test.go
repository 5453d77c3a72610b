package configstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/confsync/internal/models"
)

func TestUserProfile_SetGet(t *testing.T) {
	profile := NewUserProfile(NewObject(models.NamespaceUserProfile, testOwner))

	empty, err := profile.Get()
	require.NoError(t, err)
	assert.Equal(t, &models.UserProfile{}, empty)

	want := &models.UserProfile{
		Name:               "Alice",
		Picture:            models.ProfilePicture{URL: "https://example.com/a.png", Key: make([]byte, 32)},
		NoteToSelfPriority: 1,
	}
	require.NoError(t, profile.Set(want))

	got, err := profile.Get()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, profile.SetPicture(models.ProfilePicture{}))
	got, err = profile.Get()
	require.NoError(t, err)
	assert.True(t, got.Picture.Empty())
	assert.Equal(t, "Alice", got.Name)
}

func TestUserProfile_MergeCommutative(t *testing.T) {
	a := NewObject(models.NamespaceUserProfile, testOwner)
	b := NewObject(models.NamespaceUserProfile, testOwner)
	c := NewObject(models.NamespaceUserProfile, testOwner)

	setName(t, a, "Alice")
	setName(t, b, "Bob")
	require.NoError(t, NewUserProfile(c).SetPicture(models.ProfilePicture{URL: "https://example.com/p", Key: make([]byte, 32)}))

	ra, rb, rc := remoteFrom(t, a, "ha"), remoteFrom(t, b, "hb"), remoteFrom(t, c, "hc")

	x := NewObject(models.NamespaceUserProfile, testOwner)
	_, err := x.Merge([]Remote{ra})
	require.NoError(t, err)
	_, err = x.Merge([]Remote{rb, rc})
	require.NoError(t, err)

	y := NewObject(models.NamespaceUserProfile, testOwner)
	_, err = y.Merge([]Remote{rc})
	require.NoError(t, err)
	_, err = y.Merge([]Remote{rb})
	require.NoError(t, err)
	_, err = y.Merge([]Remote{ra})
	require.NoError(t, err)

	assert.True(t, documentOf(t, x).Equal(documentOf(t, y)))

	// Повторное слияние ничего не меняет
	before := documentOf(t, x)
	outcome, err := x.Merge([]Remote{ra, rb, rc})
	require.NoError(t, err)
	assert.Empty(t, outcome.Changed)
	assert.True(t, before.Equal(documentOf(t, x)))
}
