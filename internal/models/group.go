package models

import (
	"sort"
	"time"
)

// NotifyMode режим уведомлений для группы.
type NotifyMode int64

const (
	NotifyDefault      NotifyMode = 0
	NotifyAll          NotifyMode = 1
	NotifyDisabled     NotifyMode = 2
	NotifyMentionsOnly NotifyMode = 3
)

// LegacyGroup представляет запись legacy-группы в namespace UserGroups.
type LegacyGroup struct {
	JoinedAt          time.Time       `json:"joined_at"`
	KeyReceivedAt     time.Time       `json:"key_received_at"`
	MuteUntil         time.Time       `json:"mute_until"`
	Members           map[string]bool `json:"members"` // Members session ID -> isAdmin
	ID                string          `json:"id"`      // ID идентификатор группы (66 hex, префикс 05)
	Name              string          `json:"name"`
	EncPubKey         []byte          `json:"enc_pub_key"`
	EncSecKey         []byte          `json:"enc_sec_key"`
	DisappearingTimer time.Duration   `json:"disappearing_timer"`
	Priority          int64           `json:"priority"`
	NotifyMode        NotifyMode      `json:"notify_mode"`
}

// NewLegacyGroup создает пустую запись группы с заданным ID.
func NewLegacyGroup(id string) *LegacyGroup {
	return &LegacyGroup{
		ID:      id,
		Members: make(map[string]bool),
	}
}

// Insert добавляет участника или меняет его флаг администратора.
// Возвращает true, если состав или флаг изменились.
func (g *LegacyGroup) Insert(sessionID string, admin bool) bool {
	if g.Members == nil {
		g.Members = make(map[string]bool)
	}
	current, exists := g.Members[sessionID]
	if exists && current == admin {
		return false
	}
	g.Members[sessionID] = admin
	return true
}

// Erase удаляет участника. Возвращает true, если участник был в группе.
func (g *LegacyGroup) Erase(sessionID string) bool {
	if _, exists := g.Members[sessionID]; !exists {
		return false
	}
	delete(g.Members, sessionID)
	return true
}

// Counts возвращает количество обычных участников и администраторов.
func (g *LegacyGroup) Counts() (members, admins int) {
	for _, admin := range g.Members {
		if admin {
			admins++
		} else {
			members++
		}
	}
	return members, admins
}

// SortedMembers возвращает session ID участников в лексикографическом порядке.
func (g *LegacyGroup) SortedMembers() []string {
	ids := make([]string, 0, len(g.Members))
	for id := range g.Members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Hidden сообщает, что группа скрыта или удалена.
func (g *LegacyGroup) Hidden() bool {
	return IsHidden(g.Priority)
}

// Clone создает глубокую копию группы.
func (g *LegacyGroup) Clone() *LegacyGroup {
	clone := *g
	clone.EncPubKey = append([]byte(nil), g.EncPubKey...)
	clone.EncSecKey = append([]byte(nil), g.EncSecKey...)
	clone.Members = make(map[string]bool, len(g.Members))
	for id, admin := range g.Members {
		clone.Members[id] = admin
	}
	return &clone
}
