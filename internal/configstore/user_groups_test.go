package configstore

import (
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/confsync/internal/models"
)

var englishmenGroupID = "055" + strings.Repeat("0", 63)

func TestUserGroups_LegacyGroupScenario(t *testing.T) {
	obj := NewObject(models.NamespaceUserGroups, testOwner)
	groups := NewUserGroups(obj)

	group, err := groups.GetOrConstructLegacyGroup(englishmenGroupID)
	require.NoError(t, err)
	assert.Empty(t, group.Members)
	assert.False(t, obj.NeedsPush())

	for i := 1; i <= 5; i++ {
		group.Insert(testSessionID(i), i <= 2)
	}
	require.NoError(t, groups.SetLegacyGroup(group))

	members, admins := group.Counts()
	assert.Equal(t, 3, members)
	assert.Equal(t, 2, admins)

	require.NoError(t, groups.UpdateLegacyGroup(englishmenGroupID, func(g *models.LegacyGroup) error {
		g.Erase(testSessionID(1)) // администратор
		g.Erase(testSessionID(5))
		g.Name = "Englishmen"
		g.DisappearingTimer = 60 * time.Second
		g.Priority = 3
		return nil
	}))

	data, _, err := obj.Dump()
	require.NoError(t, err)
	restored, err := Restore(data)
	require.NoError(t, err)

	got, err := NewUserGroups(restored).LegacyGroup(englishmenGroupID)
	require.NoError(t, err)
	members, admins = got.Counts()
	assert.Equal(t, 2, members)
	assert.Equal(t, 1, admins)
	assert.Equal(t, "Englishmen", got.Name)
	assert.Equal(t, 60*time.Second, got.DisappearingTimer)
	assert.Equal(t, int64(3), got.Priority)
	assert.Equal(t, []string{testSessionID(2), testSessionID(3), testSessionID(4)}, got.SortedMembers())
}

func TestUserGroups_EraseTombstoneWinsOverStale(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, groups *UserGroups)
		erase func(groups *UserGroups) (bool, error)
		count func(groups *UserGroups, pred bool) int
	}{
		{
			name: "legacy group",
			setup: func(t *testing.T, groups *UserGroups) {
				require.NoError(t, groups.UpdateLegacyGroup(englishmenGroupID, func(g *models.LegacyGroup) error {
					g.Name = "Group"
					g.Priority = 1
					return nil
				}))
			},
			erase: func(groups *UserGroups) (bool, error) { return groups.EraseLegacyGroup(englishmenGroupID) },
			count: func(groups *UserGroups, visible bool) int {
				if visible {
					return len(Collect(groups.LegacyGroups(Visible[*models.LegacyGroup])))
				}
				return len(Collect(groups.LegacyGroups(nil)))
			},
		},
		{
			name: "community",
			setup: func(t *testing.T, groups *UserGroups) {
				require.NoError(t, groups.SetCommunity(&models.Community{
					BaseURL: "https://example.com", Room: "Room", PubKey: make([]byte, 32), Priority: 1,
				}))
			},
			erase: func(groups *UserGroups) (bool, error) { return groups.EraseCommunity("HTTPS://EXAMPLE.COM", "room") },
			count: func(groups *UserGroups, visible bool) int {
				if visible {
					return len(Collect(groups.Communities(Visible[*models.Community])))
				}
				return len(Collect(groups.Communities(nil)))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := NewObject(models.NamespaceUserGroups, testOwner)
			groups := NewUserGroups(obj)
			tt.setup(t, groups)
			pushAndConfirm(t, obj, "h1", true)
			stale := remoteFrom(t, obj, "h1")

			found, err := tt.erase(groups)
			require.NoError(t, err)
			assert.True(t, found)
			found, err = tt.erase(groups)
			require.NoError(t, err)
			assert.True(t, found)

			_, err = obj.Merge([]Remote{stale})
			require.NoError(t, err)

			assert.Equal(t, 0, tt.count(groups, true), "tombstone must win over the stale remote")
			assert.Equal(t, 1, tt.count(groups, false))
		})
	}
}

func TestUserGroups_ConcurrentAddRemoveMember(t *testing.T) {
	base := NewObject(models.NamespaceUserGroups, testOwner)
	require.NoError(t, NewUserGroups(base).UpdateLegacyGroup(englishmenGroupID, func(g *models.LegacyGroup) error {
		g.Insert(testSessionID(1), false)
		return nil
	}))
	pushAndConfirm(t, base, "h1", true)
	data, _, err := base.Dump()
	require.NoError(t, err)

	device1, err := Restore(data)
	require.NoError(t, err)
	device2, err := Restore(data)
	require.NoError(t, err)

	// Одно устройство удаляет участника, другое одновременно добавляет нового
	require.NoError(t, NewUserGroups(device1).UpdateLegacyGroup(englishmenGroupID, func(g *models.LegacyGroup) error {
		g.Erase(testSessionID(1))
		return nil
	}))
	require.NoError(t, NewUserGroups(device2).UpdateLegacyGroup(englishmenGroupID, func(g *models.LegacyGroup) error {
		g.Insert(testSessionID(2), true)
		return nil
	}))

	_, err = device1.Merge([]Remote{remoteFrom(t, device2, "h2")})
	require.NoError(t, err)

	group, err := NewUserGroups(device1).LegacyGroup(englishmenGroupID)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{testSessionID(2): true}, group.Members,
		"removal with a higher seqno wins, the concurrent addition survives")
}

func TestUserGroups_CommunityCasing(t *testing.T) {
	groups := NewUserGroups(NewObject(models.NamespaceUserGroups, testOwner))

	require.NoError(t, groups.SetCommunity(&models.Community{
		BaseURL: "HTTPS://Example.COM:443/", Room: "SomeRoom", PubKey: make([]byte, 32),
	}))
	require.NoError(t, groups.SetCommunity(&models.Community{
		BaseURL: "https://example.com", Room: "SOMEROOM", PubKey: make([]byte, 32), Priority: 5,
	}))

	all := Collect(groups.Communities(nil))
	require.Len(t, all, 1)

	c, err := groups.Community("https://EXAMPLE.com", "someroom")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", c.BaseURL)
	assert.Equal(t, "SomeRoom", c.Room, "room casing comes from the first write")
	assert.Equal(t, int64(5), c.Priority)

	existing, err := groups.GetOrConstructCommunity("https://example.com", "someROOM", nil)
	require.NoError(t, err)
	assert.Equal(t, "SomeRoom", existing.Room)
}

func TestUserGroups_Limits(t *testing.T) {
	obj := NewObject(models.NamespaceUserGroups, testOwner)
	require.NoError(t, NewUserGroups(obj).UpdateLegacyGroup(englishmenGroupID, func(g *models.LegacyGroup) error {
		g.Name = strings.Repeat("n", models.MaxNameLength+1)
		return nil
	}))

	_, err := obj.ComputePush(testSealer(obj.Namespace()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field too large")
}

func TestUserGroups_InvalidIDs(t *testing.T) {
	groups := NewUserGroups(NewObject(models.NamespaceUserGroups, testOwner))

	_, err := groups.GetOrConstructLegacyGroup("06abc")
	require.True(t, errors.Is(err, ErrInvalidKey), "%v", err)
	require.True(t, errors.Is(groups.SetCommunity(&models.Community{BaseURL: "ftp://x", Room: "r"}), ErrInvalidKey), "%v", groups.SetCommunity(&models.Community{BaseURL: "ftp://x", Room: "r"}))
	require.True(t, errors.Is(groups.SetCommunity(&models.Community{BaseURL: "https://x"}), ErrInvalidKey), "%v", groups.SetCommunity(&models.Community{BaseURL: "https://x"}))
}
