package groupupdate

import (
	"github.com/cockroachdb/errors"

	"github.com/iudanet/confsync/internal/configstore"
	"github.com/iudanet/confsync/internal/models"
)

// Apply проверяет сообщение и вносит его в конфигурацию групп.
// Все изменения одного сообщения фиксируются одной транзакцией.
func Apply(groups *configstore.UserGroups, threadID string, u Update) error {
	if err := Validate(threadID, u); err != nil {
		return err
	}
	groupID, _ := GroupID(threadID)

	switch u := u.(type) {
	case NewGroup:
		return groups.UpdateLegacyGroup(groupID, func(g *models.LegacyGroup) error {
			g.Name = u.Name
			g.EncPubKey = u.EncPubKey
			g.EncSecKey = u.EncSecKey
			g.DisappearingTimer = u.DisappearingTimer
			if g.JoinedAt.IsZero() {
				g.JoinedAt = u.CreatedAt
			}
			if models.IsHidden(g.Priority) {
				g.Priority = models.PriorityUnpinned
			}
			g.Members = make(map[string]bool, len(u.Members))
			for _, m := range u.Members {
				g.Insert(m, false)
			}
			for _, a := range u.Admins {
				g.Insert(a, true)
			}
			return nil
		})

	case NameChange:
		return update(groups, groupID, func(g *models.LegacyGroup) {
			g.Name = u.Name
		})

	case MembersAdded:
		return update(groups, groupID, func(g *models.LegacyGroup) {
			for _, m := range u.Members {
				if _, ok := g.Members[m]; !ok {
					g.Insert(m, false)
				}
			}
		})

	case MembersRemoved:
		return update(groups, groupID, func(g *models.LegacyGroup) {
			for _, m := range u.Members {
				g.Erase(m)
			}
		})

	case MemberLeft:
		if u.Self {
			_, err := groups.EraseLegacyGroup(groupID)
			return err
		}
		return update(groups, groupID, func(g *models.LegacyGroup) {
			g.Erase(u.Member)
		})

	case EncryptionKeyPair:
		return update(groups, groupID, func(g *models.LegacyGroup) {
			g.EncPubKey = u.PubKey
			g.EncSecKey = u.SecKey
			g.KeyReceivedAt = u.ReceivedAt
		})

	default:
		return errors.Wrapf(ErrInvalidUpdate, "unsupported update %T", u)
	}
}

// update изменяет существующую группу; сообщения для неизвестной группы отклоняются.
func update(groups *configstore.UserGroups, groupID string, fn func(g *models.LegacyGroup)) error {
	if _, err := groups.LegacyGroup(groupID); err != nil {
		return errors.Wrapf(err, "group %s", groupID)
	}
	return groups.UpdateLegacyGroup(groupID, func(g *models.LegacyGroup) error {
		fn(g)
		return nil
	})
}
