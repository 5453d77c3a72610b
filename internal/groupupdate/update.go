// Package groupupdate применяет управляющие сообщения legacy-групп к конфигурации UserGroups.
package groupupdate

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/iudanet/confsync/internal/models"
	"github.com/iudanet/confsync/internal/validation"
)

// ThreadPrefix - префикс идентификатора треда legacy-группы.
const ThreadPrefix = "__textsecure_group__!"

var (
	ErrInvalidThread = errors.New("thread is not a legacy group")
	ErrInvalidUpdate = errors.New("invalid group update")
)

// Kind - вид управляющего сообщения.
type Kind int

const (
	KindNewGroup Kind = iota + 1
	KindNameChange
	KindMembersAdded
	KindMembersRemoved
	KindMemberLeft
	KindEncryptionKeyPair
)

func (k Kind) String() string {
	switch k {
	case KindNewGroup:
		return "new_group"
	case KindNameChange:
		return "name_change"
	case KindMembersAdded:
		return "members_added"
	case KindMembersRemoved:
		return "members_removed"
	case KindMemberLeft:
		return "member_left"
	case KindEncryptionKeyPair:
		return "encryption_key_pair"
	default:
		return "unknown"
	}
}

// Update - управляющее сообщение группы. Набор реализаций закрыт.
type Update interface {
	Kind() Kind
	validate(groupID string) error
}

// NewGroup создает группу или повторно приглашает в нее.
type NewGroup struct {
	CreatedAt         time.Time
	Members           []string
	Admins            []string
	GroupID           string
	Name              string
	EncPubKey         []byte
	EncSecKey         []byte
	DisappearingTimer time.Duration
}

// NameChange переименовывает группу.
type NameChange struct {
	Name string
}

// MembersAdded добавляет участников.
type MembersAdded struct {
	Members []string
}

// MembersRemoved исключает участников.
type MembersRemoved struct {
	Members []string
}

// MemberLeft - участник покинул группу. Self означает, что ушел сам пользователь
// (сообщение пришло с другого его устройства).
type MemberLeft struct {
	Member string
	Self   bool
}

// EncryptionKeyPair передает новую пару ключей шифрования группы.
type EncryptionKeyPair struct {
	ReceivedAt time.Time
	PubKey     []byte
	SecKey     []byte
}

func (NewGroup) Kind() Kind          { return KindNewGroup }
func (NameChange) Kind() Kind        { return KindNameChange }
func (MembersAdded) Kind() Kind      { return KindMembersAdded }
func (MembersRemoved) Kind() Kind    { return KindMembersRemoved }
func (MemberLeft) Kind() Kind        { return KindMemberLeft }
func (EncryptionKeyPair) Kind() Kind { return KindEncryptionKeyPair }

// GroupID извлекает ID группы из идентификатора треда.
func GroupID(threadID string) (string, error) {
	if !strings.HasPrefix(threadID, ThreadPrefix) {
		return "", errors.Wrapf(ErrInvalidThread, "thread %q", threadID)
	}
	id := strings.TrimPrefix(threadID, ThreadPrefix)
	if err := validation.ValidateLegacyGroupID(id); err != nil {
		return "", errors.Mark(err, ErrInvalidThread)
	}
	return id, nil
}

// ThreadID строит идентификатор треда для группы.
func ThreadID(groupID string) string {
	return ThreadPrefix + groupID
}

// Validate проверяет, что сообщение относится к треду legacy-группы и корректно.
func Validate(threadID string, u Update) error {
	if u == nil {
		return errors.Wrap(ErrInvalidUpdate, "nil update")
	}
	groupID, err := GroupID(threadID)
	if err != nil {
		return err
	}
	if err := u.validate(groupID); err != nil {
		return errors.Wrapf(err, "%s", u.Kind())
	}
	return nil
}

func (u NewGroup) validate(groupID string) error {
	if u.GroupID != groupID {
		return errors.Wrapf(ErrInvalidUpdate, "group %s does not match thread", u.GroupID)
	}
	if u.Name == "" {
		return errors.Wrap(ErrInvalidUpdate, "group name cannot be empty")
	}
	if len(u.Members) == 0 {
		return errors.Wrap(ErrInvalidUpdate, "group must have members")
	}
	if err := validateMembers(u.Members); err != nil {
		return err
	}
	return validateMembers(u.Admins)
}

func (u NameChange) validate(string) error {
	if u.Name == "" {
		return errors.Wrap(ErrInvalidUpdate, "group name cannot be empty")
	}
	return nil
}

func (u MembersAdded) validate(string) error {
	if len(u.Members) == 0 {
		return errors.Wrap(ErrInvalidUpdate, "no members")
	}
	return validateMembers(u.Members)
}

func (u MembersRemoved) validate(string) error {
	if len(u.Members) == 0 {
		return errors.Wrap(ErrInvalidUpdate, "no members")
	}
	return validateMembers(u.Members)
}

func (u MemberLeft) validate(string) error {
	if u.Self {
		return nil
	}
	return validateMembers([]string{u.Member})
}

func (u EncryptionKeyPair) validate(string) error {
	if len(u.PubKey) != models.GroupEncKeyLength || len(u.SecKey) != models.GroupEncKeyLength {
		return errors.Wrapf(ErrInvalidUpdate, "encryption keys must be %d bytes", models.GroupEncKeyLength)
	}
	return nil
}

func validateMembers(members []string) error {
	for _, m := range members {
		if err := validation.ValidateSessionID(m); err != nil {
			return errors.Mark(errors.Wrapf(err, "member %q", m), ErrInvalidUpdate)
		}
	}
	return nil
}
