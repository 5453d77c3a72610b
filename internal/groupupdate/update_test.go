package groupupdate

import (
	"fmt"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/confsync/internal/configstore"
	"github.com/iudanet/confsync/internal/models"
)

func sessionID(n int) string {
	return "05" + fmt.Sprintf("%064x", n)
}

var groupID = sessionID(0xabc)

func newGroups() *configstore.UserGroups {
	return configstore.NewUserGroups(configstore.NewObject(models.NamespaceUserGroups, "owner"))
}

func newGroup() NewGroup {
	return NewGroup{
		GroupID:   groupID,
		Name:      "Englishmen",
		Members:   []string{sessionID(1), sessionID(2), sessionID(3)},
		Admins:    []string{sessionID(1)},
		EncPubKey: make([]byte, 32),
		EncSecKey: make([]byte, 32),
		CreatedAt: time.UnixMilli(1_700_000_000_000).UTC(),
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		update   Update
		wantErr  error
		name     string
		threadID string
	}{
		{
			name:     "new group",
			threadID: ThreadID(groupID),
			update:   newGroup(),
		},
		{
			name:     "contact thread",
			threadID: sessionID(1),
			update:   NameChange{Name: "x"},
			wantErr:  ErrInvalidThread,
		},
		{
			name:     "community thread",
			threadID: "https://example.com/lobby",
			update:   NameChange{Name: "x"},
			wantErr:  ErrInvalidThread,
		},
		{
			name:     "prefix with bad group id",
			threadID: ThreadPrefix + "05zz",
			update:   NameChange{Name: "x"},
			wantErr:  ErrInvalidThread,
		},
		{
			name:     "new group for other thread",
			threadID: ThreadID(sessionID(7)),
			update:   newGroup(),
			wantErr:  ErrInvalidUpdate,
		},
		{
			name:     "empty name",
			threadID: ThreadID(groupID),
			update:   NameChange{},
			wantErr:  ErrInvalidUpdate,
		},
		{
			name:     "bad member",
			threadID: ThreadID(groupID),
			update:   MembersAdded{Members: []string{"06abc"}},
			wantErr:  ErrInvalidUpdate,
		},
		{
			name:     "no members removed",
			threadID: ThreadID(groupID),
			update:   MembersRemoved{},
			wantErr:  ErrInvalidUpdate,
		},
		{
			name:     "self left without member",
			threadID: ThreadID(groupID),
			update:   MemberLeft{Self: true},
		},
		{
			name:     "short key pair",
			threadID: ThreadID(groupID),
			update:   EncryptionKeyPair{PubKey: []byte{1}, SecKey: []byte{2}},
			wantErr:  ErrInvalidUpdate,
		},
		{
			name:     "nil update",
			threadID: ThreadID(groupID),
			wantErr:  ErrInvalidUpdate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.threadID, tt.update)
			if tt.wantErr != nil {
				require.True(t, errors.Is(err, tt.wantErr), "%v", err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestApply_Lifecycle(t *testing.T) {
	groups := newGroups()
	thread := ThreadID(groupID)

	require.NoError(t, Apply(groups, thread, newGroup()))
	group, err := groups.LegacyGroup(groupID)
	require.NoError(t, err)
	assert.Equal(t, "Englishmen", group.Name)
	members, admins := group.Counts()
	assert.Equal(t, 2, members)
	assert.Equal(t, 1, admins)
	assert.Equal(t, time.UnixMilli(1_700_000_000_000).UTC(), group.JoinedAt)

	require.NoError(t, Apply(groups, thread, NameChange{Name: "Scotsmen"}))
	require.NoError(t, Apply(groups, thread, MembersAdded{Members: []string{sessionID(4), sessionID(1)}}))
	require.NoError(t, Apply(groups, thread, MembersRemoved{Members: []string{sessionID(2)}}))
	require.NoError(t, Apply(groups, thread, MemberLeft{Member: sessionID(3)}))

	pub := make([]byte, 32)
	pub[0] = 7
	require.NoError(t, Apply(groups, thread, EncryptionKeyPair{
		PubKey:     pub,
		SecKey:     make([]byte, 32),
		ReceivedAt: time.UnixMilli(1_700_000_100_000).UTC(),
	}))

	group, err = groups.LegacyGroup(groupID)
	require.NoError(t, err)
	assert.Equal(t, "Scotsmen", group.Name)
	assert.Equal(t, []string{sessionID(1), sessionID(4)}, group.SortedMembers())
	assert.True(t, group.Members[sessionID(1)], "existing admin keeps admin flag")
	assert.Equal(t, pub, group.EncPubKey)
	assert.Equal(t, time.UnixMilli(1_700_000_100_000).UTC(), group.KeyReceivedAt)
}

func TestApply_SelfLeftHidesGroup(t *testing.T) {
	groups := newGroups()
	thread := ThreadID(groupID)

	require.NoError(t, Apply(groups, thread, newGroup()))
	require.NoError(t, Apply(groups, thread, MemberLeft{Self: true}))

	group, err := groups.LegacyGroup(groupID)
	require.NoError(t, err)
	assert.True(t, group.Hidden())

	// Повторное приглашение возвращает группу
	require.NoError(t, Apply(groups, thread, newGroup()))
	group, err = groups.LegacyGroup(groupID)
	require.NoError(t, err)
	assert.False(t, group.Hidden())
}

func TestApply_UnknownGroup(t *testing.T) {
	groups := newGroups()

	err := Apply(groups, ThreadID(groupID), NameChange{Name: "Ghost"})
	require.True(t, errors.Is(err, configstore.ErrNotFound), "%v", err)
	assert.False(t, groups.Object().NeedsPush())
}

func TestApply_InvalidDoesNotTouchConfig(t *testing.T) {
	groups := newGroups()

	err := Apply(groups, sessionID(1), newGroup())
	require.True(t, errors.Is(err, ErrInvalidThread), "%v", err)
	assert.False(t, groups.Object().NeedsPush())
}

func TestKind_String(t *testing.T) {
	updates := []Update{
		NewGroup{}, NameChange{}, MembersAdded{}, MembersRemoved{}, MemberLeft{}, EncryptionKeyPair{},
	}
	seen := make(map[string]bool)
	for _, u := range updates {
		name := u.Kind().String()
		assert.NotEqual(t, "unknown", name)
		seen[name] = true
	}
	assert.Len(t, seen, len(updates))
}
