package configstore

import (
	"iter"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/iudanet/confsync/internal/crdt"
	"github.com/iudanet/confsync/internal/models"
	"github.com/iudanet/confsync/internal/validation"
)

// Поля записи legacy-группы
const (
	groupName          = "n"
	groupEncPub        = "k"
	groupEncSec        = "K"
	groupKeyReceived   = "t"
	groupMemberPrefix  = "m:"
	groupDisappearing  = "E"
	groupPriority      = "+"
	groupJoined        = "j"
	groupNotify        = "@"
	groupMuteUntil     = "!"
	communityBaseURL   = "u"
	communityRoom      = "R"
	communityPubKey    = "p"
	communityPriority  = "+"
	memberRemovedValue = 0
	memberValue        = 1
	memberAdminValue   = 2
)

// Участник кодируется байтом: удален < участник < администратор.
// При равных seqno побеждает большее значение, поэтому одновременные
// добавление и удаление разрешаются в пользу добавления.

// UserGroups - типизированное представление namespace UserGroups:
// legacy-группы (ключ "C"+ID) и communities (ключ "o"+base/room).
type UserGroups struct {
	obj *Object
}

// NewUserGroups создает представление поверх объекта namespace UserGroups.
func NewUserGroups(obj *Object) *UserGroups {
	return &UserGroups{obj: obj}
}

// Object возвращает объект конфигурации представления.
func (g *UserGroups) Object() *Object {
	return g.obj
}

// LegacyGroup возвращает legacy-группу или ErrNotFound.
func (g *UserGroups) LegacyGroup(id string) (*models.LegacyGroup, error) {
	group, found, err := lookup(g.obj, prefixLegacyGroup+id, decodeLegacyGroup)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrapf(ErrNotFound, "legacy group %s", id)
	}
	return group, nil
}

// GetOrConstructLegacyGroup возвращает группу или новую пустую без записи в объект.
func (g *UserGroups) GetOrConstructLegacyGroup(id string) (*models.LegacyGroup, error) {
	if err := validation.ValidateLegacyGroupID(id); err != nil {
		return nil, errors.Mark(err, ErrInvalidKey)
	}
	group, found, err := lookup(g.obj, prefixLegacyGroup+id, decodeLegacyGroup)
	if err != nil {
		return nil, err
	}
	if !found {
		return models.NewLegacyGroup(id), nil
	}
	return group, nil
}

// SetLegacyGroup записывает группу целиком, включая состав участников:
// участники, отсутствующие в group.Members, отмечаются удаленными.
func (g *UserGroups) SetLegacyGroup(group *models.LegacyGroup) error {
	if err := validation.ValidateLegacyGroupID(group.ID); err != nil {
		return errors.Mark(err, ErrInvalidKey)
	}
	return g.obj.Edit(func(tx *Tx) error {
		encodeLegacyGroup(tx, group)
		return nil
	})
}

// UpdateLegacyGroup открывает группу для изменения и фиксирует результат одной транзакцией.
func (g *UserGroups) UpdateLegacyGroup(id string, fn func(group *models.LegacyGroup) error) error {
	if err := validation.ValidateLegacyGroupID(id); err != nil {
		return errors.Mark(err, ErrInvalidKey)
	}
	key := prefixLegacyGroup + id
	return g.obj.Edit(func(tx *Tx) error {
		group := models.NewLegacyGroup(id)
		if r, ok := tx.Record(key); ok {
			group = decodeLegacyGroup(key, r)
		}
		if err := fn(group); err != nil {
			return err
		}
		group.ID = id
		encodeLegacyGroup(tx, group)
		return nil
	})
}

// EraseLegacyGroup скрывает группу отрицательным приоритетом.
func (g *UserGroups) EraseLegacyGroup(id string) (bool, error) {
	return eraseByPriority(g.obj, prefixLegacyGroup+id, groupPriority)
}

// LegacyGroups возвращает legacy-группы, удовлетворяющие pred (nil - все).
func (g *UserGroups) LegacyGroups(pred func(*models.LegacyGroup) bool) iter.Seq[*models.LegacyGroup] {
	return iterate(g.obj, prefixLegacyGroup, decodeLegacyGroup, pred)
}

// Community возвращает community по base URL и room без учета регистра.
func (g *UserGroups) Community(baseURL, room string) (*models.Community, error) {
	community, found, err := lookup(g.obj, communityKey(baseURL, room), decodeCommunity)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrapf(ErrNotFound, "community %s/%s", baseURL, room)
	}
	return community, nil
}

// GetOrConstructCommunity возвращает community или новое без записи в объект.
// У существующего community сохраняется регистр room первой записи.
func (g *UserGroups) GetOrConstructCommunity(baseURL, room string, pubKey []byte) (*models.Community, error) {
	normalized, err := models.NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, errors.Mark(err, ErrInvalidKey)
	}
	if room == "" {
		return nil, errors.Wrap(ErrInvalidKey, "community room cannot be empty")
	}
	community, found, err := lookup(g.obj, communityKey(normalized, room), decodeCommunity)
	if err != nil {
		return nil, err
	}
	if !found {
		return &models.Community{BaseURL: normalized, Room: room, PubKey: clone(pubKey)}, nil
	}
	return community, nil
}

// SetCommunity записывает community.
func (g *UserGroups) SetCommunity(c *models.Community) error {
	normalized, err := models.NormalizeBaseURL(c.BaseURL)
	if err != nil {
		return errors.Mark(err, ErrInvalidKey)
	}
	if c.Room == "" {
		return errors.Wrap(ErrInvalidKey, "community room cannot be empty")
	}
	return g.obj.Edit(func(tx *Tx) error {
		encodeCommunity(tx, communityKey(normalized, c.Room), normalized, c)
		return nil
	})
}

// EraseCommunity скрывает community отрицательным приоритетом.
func (g *UserGroups) EraseCommunity(baseURL, room string) (bool, error) {
	return eraseByPriority(g.obj, communityKey(baseURL, room), communityPriority)
}

// Communities возвращает communities, удовлетворяющие pred (nil - все).
func (g *UserGroups) Communities(pred func(*models.Community) bool) iter.Seq[*models.Community] {
	return iterate(g.obj, prefixCommunity, decodeCommunity, pred)
}

func communityKey(baseURL, room string) string {
	return prefixCommunity + models.CommunityKey(baseURL, room)
}

func eraseByPriority(o *Object, key, field string) (bool, error) {
	found := false
	err := o.Edit(func(tx *Tx) error {
		if _, ok := tx.Record(key); !ok {
			return nil
		}
		found = true
		tx.Set(key, field, encodeInt(models.PriorityHidden))
		return nil
	})
	return found, err
}

func decodeLegacyGroup(key string, r *crdt.Record) *models.LegacyGroup {
	group := models.NewLegacyGroup(strings.TrimPrefix(key, prefixLegacyGroup))
	group.Name = string(value(r, groupName))
	group.EncPubKey = clone(value(r, groupEncPub))
	group.EncSecKey = clone(value(r, groupEncSec))
	group.KeyReceivedAt = decodeTime(value(r, groupKeyReceived))
	group.DisappearingTimer = decodeSeconds(value(r, groupDisappearing))
	group.Priority = decodeInt(value(r, groupPriority))
	group.JoinedAt = decodeTime(value(r, groupJoined))
	group.NotifyMode = models.NotifyMode(decodeInt(value(r, groupNotify)))
	group.MuteUntil = decodeTime(value(r, groupMuteUntil))

	for _, name := range fieldsWithPrefix(r, groupMemberPrefix) {
		v := value(r, name)
		if len(v) == 0 || v[0] == memberRemovedValue {
			continue
		}
		group.Members[strings.TrimPrefix(name, groupMemberPrefix)] = v[0] == memberAdminValue
	}
	return group
}

func encodeLegacyGroup(tx *Tx, g *models.LegacyGroup) {
	key := prefixLegacyGroup + g.ID
	tx.Set(key, groupName, []byte(g.Name))
	tx.Set(key, groupEncPub, g.EncPubKey)
	tx.Set(key, groupEncSec, g.EncSecKey)
	tx.Set(key, groupKeyReceived, encodeTime(g.KeyReceivedAt))
	tx.Set(key, groupDisappearing, encodeSeconds(g.DisappearingTimer))
	tx.Set(key, groupPriority, encodeInt(g.Priority))
	tx.Set(key, groupJoined, encodeTime(g.JoinedAt))
	tx.Set(key, groupNotify, encodeInt(int64(g.NotifyMode)))
	tx.Set(key, groupMuteUntil, encodeTime(g.MuteUntil))

	// Удаленные участники
	if r, ok := tx.Record(key); ok {
		for _, name := range fieldsWithPrefix(r, groupMemberPrefix) {
			if _, present := g.Members[strings.TrimPrefix(name, groupMemberPrefix)]; !present {
				tx.Set(key, name, []byte{memberRemovedValue})
			}
		}
	}
	for _, id := range g.SortedMembers() {
		v := byte(memberValue)
		if g.Members[id] {
			v = memberAdminValue
		}
		tx.Set(key, groupMemberPrefix+id, []byte{v})
	}
}

func decodeCommunity(_ string, r *crdt.Record) *models.Community {
	return &models.Community{
		BaseURL:  string(value(r, communityBaseURL)),
		Room:     string(value(r, communityRoom)),
		PubKey:   clone(value(r, communityPubKey)),
		Priority: decodeInt(value(r, communityPriority)),
	}
}

func encodeCommunity(tx *Tx, key, baseURL string, c *models.Community) {
	tx.Set(key, communityBaseURL, []byte(baseURL))
	// Регистр room фиксируется первой записью
	if len(tx.Get(key, communityRoom)) == 0 {
		tx.Set(key, communityRoom, []byte(c.Room))
	}
	tx.Set(key, communityPubKey, c.PubKey)
	tx.Set(key, communityPriority, encodeInt(c.Priority))
}
