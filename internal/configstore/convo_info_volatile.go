package configstore

import (
	"encoding/binary"
	"iter"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/iudanet/confsync/internal/crdt"
	"github.com/iudanet/confsync/internal/models"
	"github.com/iudanet/confsync/internal/validation"
)

// Поле состояния прочтения хранит время прочтения (8 байт big-endian) и флаг unread.
// Оно сливается по максимуму значения: побеждает большее время, и флаг unread
// переходит вместе с ним. При равном времени побеждает unread.
const (
	volatileRead    = "r"
	volatileBaseURL = "u"
	volatileRoom    = "R"
	volatilePubKey  = "p"
)

// VolatileMaxAge - записи о прочтении старше этого срока удаляются при Prune.
const VolatileMaxAge = 30 * 24 * time.Hour

func volatilePolicy(field string) crdt.Policy {
	if field == volatileRead {
		return crdt.PolicyMax
	}
	return crdt.PolicyLWW
}

// ConvoInfoVolatile - типизированное представление namespace ConvoInfoVolatile.
// Записи не имеют tombstone: Erase удаляет их физически.
type ConvoInfoVolatile struct {
	obj *Object
}

// NewConvoInfoVolatile создает представление поверх объекта namespace ConvoInfoVolatile.
func NewConvoInfoVolatile(obj *Object) *ConvoInfoVolatile {
	return &ConvoInfoVolatile{obj: obj}
}

// Object возвращает объект конфигурации представления.
func (v *ConvoInfoVolatile) Object() *Object {
	return v.obj
}

// OneToOne возвращает состояние прочтения личного диалога или ErrNotFound.
func (v *ConvoInfoVolatile) OneToOne(sessionID string) (*models.OneToOneVolatile, error) {
	entry, found, err := lookup(v.obj, prefixOneToOne+sessionID, decodeOneToOne)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrapf(ErrNotFound, "volatile 1-to-1 %s", sessionID)
	}
	return entry, nil
}

// GetOrConstructOneToOne возвращает состояние или новое пустое без записи в объект.
func (v *ConvoInfoVolatile) GetOrConstructOneToOne(sessionID string) (*models.OneToOneVolatile, error) {
	if err := validation.ValidateSessionID(sessionID); err != nil {
		return nil, errors.Mark(err, ErrInvalidKey)
	}
	entry, found, err := lookup(v.obj, prefixOneToOne+sessionID, decodeOneToOne)
	if err != nil {
		return nil, err
	}
	if !found {
		return &models.OneToOneVolatile{SessionID: sessionID}, nil
	}
	return entry, nil
}

// SetOneToOne записывает состояние прочтения личного диалога.
func (v *ConvoInfoVolatile) SetOneToOne(entry *models.OneToOneVolatile) error {
	if err := validation.ValidateSessionID(entry.SessionID); err != nil {
		return errors.Mark(err, ErrInvalidKey)
	}
	return v.obj.Edit(func(tx *Tx) error {
		setReadState(tx, prefixOneToOne+entry.SessionID, entry.ReadState)
		return nil
	})
}

// EraseOneToOne удаляет запись. Возвращает true, если запись существовала.
func (v *ConvoInfoVolatile) EraseOneToOne(sessionID string) (bool, error) {
	return v.erase(prefixOneToOne + sessionID)
}

// OneToOnes возвращает состояния личных диалогов, удовлетворяющие pred (nil - все).
func (v *ConvoInfoVolatile) OneToOnes(pred func(*models.OneToOneVolatile) bool) iter.Seq[*models.OneToOneVolatile] {
	return iterate(v.obj, prefixOneToOne, decodeOneToOne, pred)
}

// Community возвращает состояние прочтения community или ErrNotFound.
func (v *ConvoInfoVolatile) Community(baseURL, room string) (*models.CommunityVolatile, error) {
	entry, found, err := lookup(v.obj, communityKey(baseURL, room), decodeCommunityVolatile)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrapf(ErrNotFound, "volatile community %s/%s", baseURL, room)
	}
	return entry, nil
}

// SetCommunity записывает состояние прочтения community.
func (v *ConvoInfoVolatile) SetCommunity(entry *models.CommunityVolatile) error {
	normalized, err := models.NormalizeBaseURL(entry.BaseURL)
	if err != nil {
		return errors.Mark(err, ErrInvalidKey)
	}
	if entry.Room == "" {
		return errors.Wrap(ErrInvalidKey, "community room cannot be empty")
	}
	key := communityKey(normalized, entry.Room)
	return v.obj.Edit(func(tx *Tx) error {
		tx.Set(key, volatileBaseURL, []byte(normalized))
		if len(tx.Get(key, volatileRoom)) == 0 {
			tx.Set(key, volatileRoom, []byte(entry.Room))
		}
		tx.Set(key, volatilePubKey, entry.PubKey)
		setReadState(tx, key, entry.ReadState)
		return nil
	})
}

// EraseCommunity удаляет запись community.
func (v *ConvoInfoVolatile) EraseCommunity(baseURL, room string) (bool, error) {
	return v.erase(communityKey(baseURL, room))
}

// Communities возвращает состояния communities, удовлетворяющие pred (nil - все).
func (v *ConvoInfoVolatile) Communities(pred func(*models.CommunityVolatile) bool) iter.Seq[*models.CommunityVolatile] {
	return iterate(v.obj, prefixCommunity, decodeCommunityVolatile, pred)
}

// LegacyGroup возвращает состояние прочтения legacy-группы или ErrNotFound.
func (v *ConvoInfoVolatile) LegacyGroup(groupID string) (*models.LegacyGroupVolatile, error) {
	entry, found, err := lookup(v.obj, prefixLegacyGroup+groupID, decodeLegacyGroupVolatile)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrapf(ErrNotFound, "volatile legacy group %s", groupID)
	}
	return entry, nil
}

// SetLegacyGroup записывает состояние прочтения legacy-группы.
func (v *ConvoInfoVolatile) SetLegacyGroup(entry *models.LegacyGroupVolatile) error {
	if err := validation.ValidateLegacyGroupID(entry.GroupID); err != nil {
		return errors.Mark(err, ErrInvalidKey)
	}
	return v.obj.Edit(func(tx *Tx) error {
		setReadState(tx, prefixLegacyGroup+entry.GroupID, entry.ReadState)
		return nil
	})
}

// EraseLegacyGroup удаляет запись legacy-группы.
func (v *ConvoInfoVolatile) EraseLegacyGroup(groupID string) (bool, error) {
	return v.erase(prefixLegacyGroup + groupID)
}

// LegacyGroups возвращает состояния legacy-групп, удовлетворяющие pred (nil - все).
func (v *ConvoInfoVolatile) LegacyGroups(pred func(*models.LegacyGroupVolatile) bool) iter.Seq[*models.LegacyGroupVolatile] {
	return iterate(v.obj, prefixLegacyGroup, decodeLegacyGroupVolatile, pred)
}

// Prune удаляет записи, прочитанные раньше cutoff. Возвращает количество удаленных.
func (v *ConvoInfoVolatile) Prune(cutoff time.Time) (int, error) {
	removed := 0
	err := v.obj.Edit(func(tx *Tx) error {
		for _, key := range tx.Keys() {
			r, _ := tx.Record(key)
			if decodeReadState(value(r, volatileRead)).LastReadMs < cutoff.UnixMilli() {
				tx.Delete(key)
				removed++
			}
		}
		return nil
	})
	return removed, err
}

func (v *ConvoInfoVolatile) erase(key string) (bool, error) {
	found := false
	err := v.obj.Edit(func(tx *Tx) error {
		found = tx.Delete(key)
		return nil
	})
	return found, err
}

// setReadState не дает локальной записи уменьшить время прочтения:
// меньшее значение все равно проиграло бы при слиянии.
func setReadState(tx *Tx, key string, state models.ReadState) {
	current := decodeReadState(tx.Get(key, volatileRead))
	if state.LastReadMs < current.LastReadMs {
		state.LastReadMs = current.LastReadMs
	}
	tx.Set(key, volatileRead, encodeReadState(state))
}

func encodeReadState(s models.ReadState) []byte {
	if s.LastReadMs == 0 && !s.Unread {
		return nil
	}
	b := make([]byte, 9)
	binary.BigEndian.PutUint64(b, uint64(s.LastReadMs))
	if s.Unread {
		b[8] = 1
	}
	return b
}

func decodeReadState(b []byte) models.ReadState {
	if len(b) != 9 {
		return models.ReadState{}
	}
	return models.ReadState{
		LastReadMs: int64(binary.BigEndian.Uint64(b[:8])),
		Unread:     b[8] != 0,
	}
}

func decodeOneToOne(key string, r *crdt.Record) *models.OneToOneVolatile {
	return &models.OneToOneVolatile{
		SessionID: strings.TrimPrefix(key, prefixOneToOne),
		ReadState: decodeReadState(value(r, volatileRead)),
	}
}

func decodeCommunityVolatile(_ string, r *crdt.Record) *models.CommunityVolatile {
	return &models.CommunityVolatile{
		BaseURL:   string(value(r, volatileBaseURL)),
		Room:      string(value(r, volatileRoom)),
		PubKey:    clone(value(r, volatilePubKey)),
		ReadState: decodeReadState(value(r, volatileRead)),
	}
}

func decodeLegacyGroupVolatile(key string, r *crdt.Record) *models.LegacyGroupVolatile {
	return &models.LegacyGroupVolatile{
		GroupID:   strings.TrimPrefix(key, prefixLegacyGroup),
		ReadState: decodeReadState(value(r, volatileRead)),
	}
}
