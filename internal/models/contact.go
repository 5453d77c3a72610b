package models

import "time"

// ExpirationMode режим исчезающих сообщений.
type ExpirationMode int64

const (
	ExpirationNone      ExpirationMode = 0
	ExpirationAfterSend ExpirationMode = 1
	ExpirationAfterRead ExpirationMode = 2
)

// Contact представляет запись о контакте в namespace Contacts.
type Contact struct {
	CreatedAt       time.Time      `json:"created_at"`
	SessionID       string         `json:"session_id"` // SessionID идентификатор контакта (66 hex, префикс 05)
	Name            string         `json:"name"`
	Nickname        string         `json:"nickname"`
	Picture         ProfilePicture `json:"picture"`
	ExpirationTimer time.Duration  `json:"expiration_timer"`
	ExpirationMode  ExpirationMode `json:"expiration_mode"`
	Priority        int64          `json:"priority"`
	Approved        bool           `json:"approved"`    // Approved мы приняли запрос контакта
	ApprovedMe      bool           `json:"approved_me"` // ApprovedMe контакт принял наш запрос
	Blocked         bool           `json:"blocked"`
}

// NewContact создает пустую запись контакта для заданного session ID.
func NewContact(sessionID string) *Contact {
	return &Contact{SessionID: sessionID}
}

// Hidden сообщает, что контакт скрыт или удален.
func (c *Contact) Hidden() bool {
	return IsHidden(c.Priority)
}

// DisplayName возвращает nickname, если он задан, иначе имя контакта.
func (c *Contact) DisplayName() string {
	if c.Nickname != "" {
		return c.Nickname
	}
	return c.Name
}

// Clone создает глубокую копию контакта.
func (c *Contact) Clone() *Contact {
	clone := *c
	clone.Picture.Key = append([]byte(nil), c.Picture.Key...)
	return &clone
}
