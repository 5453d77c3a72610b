package configstore

import (
	"iter"

	"github.com/cockroachdb/errors"

	"github.com/iudanet/confsync/internal/crdt"
	"github.com/iudanet/confsync/internal/models"
	"github.com/iudanet/confsync/internal/validation"
)

// Поля записи контакта
const (
	contactApproved   = "a"
	contactApprovedMe = "A"
	contactBlocked    = "b"
	contactName       = "n"
	contactNickname   = "N"
	contactPicURL     = "p"
	contactPicKey     = "q"
	contactPriority   = "+"
	contactExpMode    = "e"
	contactExpTimer   = "E"
	contactCreated    = "j"
)

// Contacts - типизированное представление namespace Contacts.
// Ключ записи - session ID контакта.
type Contacts struct {
	obj *Object
}

// NewContacts создает представление поверх объекта namespace Contacts.
func NewContacts(obj *Object) *Contacts {
	return &Contacts{obj: obj}
}

// Object возвращает объект конфигурации представления.
func (c *Contacts) Object() *Object {
	return c.obj
}

// Get возвращает контакт или ErrNotFound.
func (c *Contacts) Get(sessionID string) (*models.Contact, error) {
	contact, found, err := lookup(c.obj, sessionID, decodeContact)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrapf(ErrNotFound, "contact %s", sessionID)
	}
	return contact, nil
}

// GetOrConstruct возвращает существующий контакт или новый пустой.
// Создание без изменения полей не делает объект dirty.
func (c *Contacts) GetOrConstruct(sessionID string) (*models.Contact, error) {
	if err := validation.ValidateSessionID(sessionID); err != nil {
		return nil, errors.Mark(err, ErrInvalidKey)
	}
	contact, found, err := lookup(c.obj, sessionID, decodeContact)
	if err != nil {
		return nil, err
	}
	if !found {
		return models.NewContact(sessionID), nil
	}
	return contact, nil
}

// Set записывает контакт. Записываются только изменившиеся поля.
func (c *Contacts) Set(contact *models.Contact) error {
	if err := validation.ValidateSessionID(contact.SessionID); err != nil {
		return errors.Mark(err, ErrInvalidKey)
	}
	return c.obj.Edit(func(tx *Tx) error {
		encodeContact(tx, contact)
		return nil
	})
}

// Update выполняет чтение-изменение-запись контакта в одной транзакции.
func (c *Contacts) Update(sessionID string, fn func(contact *models.Contact) error) error {
	if err := validation.ValidateSessionID(sessionID); err != nil {
		return errors.Mark(err, ErrInvalidKey)
	}
	return c.obj.Edit(func(tx *Tx) error {
		contact := models.NewContact(sessionID)
		if r, ok := tx.Record(sessionID); ok {
			contact = decodeContact(sessionID, r)
		}
		if err := fn(contact); err != nil {
			return err
		}
		contact.SessionID = sessionID
		encodeContact(tx, contact)
		return nil
	})
}

// Erase скрывает контакт, выставляя отрицательный приоритет.
// Повторный вызов ничего не меняет. Возвращает true, если запись существовала.
func (c *Contacts) Erase(sessionID string) (bool, error) {
	found := false
	err := c.obj.Edit(func(tx *Tx) error {
		if _, ok := tx.Record(sessionID); !ok {
			return nil
		}
		found = true
		tx.Set(sessionID, contactPriority, encodeInt(models.PriorityHidden))
		return nil
	})
	return found, err
}

// Iterate возвращает контакты, удовлетворяющие pred (nil - все, включая скрытые).
func (c *Contacts) Iterate(pred func(*models.Contact) bool) iter.Seq[*models.Contact] {
	return iterate(c.obj, "", decodeContact, pred)
}

func decodeContact(key string, r *crdt.Record) *models.Contact {
	return &models.Contact{
		SessionID:  key,
		Name:       string(value(r, contactName)),
		Nickname:   string(value(r, contactNickname)),
		Approved:   decodeBool(value(r, contactApproved)),
		ApprovedMe: decodeBool(value(r, contactApprovedMe)),
		Blocked:    decodeBool(value(r, contactBlocked)),
		Picture: models.ProfilePicture{
			URL: string(value(r, contactPicURL)),
			Key: clone(value(r, contactPicKey)),
		},
		Priority:        decodeInt(value(r, contactPriority)),
		ExpirationMode:  models.ExpirationMode(decodeInt(value(r, contactExpMode))),
		ExpirationTimer: decodeSeconds(value(r, contactExpTimer)),
		CreatedAt:       decodeTime(value(r, contactCreated)),
	}
}

func encodeContact(tx *Tx, c *models.Contact) {
	key := c.SessionID
	tx.Set(key, contactName, []byte(c.Name))
	tx.Set(key, contactNickname, []byte(c.Nickname))
	tx.Set(key, contactApproved, encodeBool(c.Approved))
	tx.Set(key, contactApprovedMe, encodeBool(c.ApprovedMe))
	tx.Set(key, contactBlocked, encodeBool(c.Blocked))
	tx.Set(key, contactPicURL, []byte(c.Picture.URL))
	tx.Set(key, contactPicKey, c.Picture.Key)
	tx.Set(key, contactPriority, encodeInt(c.Priority))
	tx.Set(key, contactExpMode, encodeInt(int64(c.ExpirationMode)))
	tx.Set(key, contactExpTimer, encodeSeconds(c.ExpirationTimer))
	tx.Set(key, contactCreated, encodeTime(c.CreatedAt))
}
