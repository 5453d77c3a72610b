package models

// Приоритет определяет видимость и порядок разговоров в списке:
// отрицательный - скрыт/удален, 0 - не закреплен, положительный - закреплен
// (больший приоритет выше).
const (
	PriorityHidden   int64 = -1
	PriorityUnpinned int64 = 0
)

// IsHidden сообщает, что запись с данным приоритетом скрыта (tombstone).
func IsHidden(priority int64) bool {
	return priority < 0
}

// Ограничения размеров полей в байтах.
const (
	MaxNameLength          = 100
	MaxNicknameLength      = 100
	MaxProfileURLLength    = 223
	MaxCommunityURLLength  = 267
	MaxCommunityRoomLength = 64
	ProfileKeyLength       = 32
	CommunityPubKeyLength  = 32
	GroupEncKeyLength      = 32
)
