package models

// VolatileKind различает разновидности записей ConvoInfoVolatile.
type VolatileKind byte

const (
	VolatileOneToOne    VolatileKind = '1'
	VolatileCommunity   VolatileKind = 'o'
	VolatileLegacyGroup VolatileKind = 'C'
)

// ReadState состояние прочтения разговора. Используется только для
// синхронизации между устройствами пользователя.
type ReadState struct {
	LastReadMs int64 `json:"last_read_ms"`
	Unread     bool  `json:"unread"`
}

// OneToOneVolatile состояние прочтения личного диалога.
type OneToOneVolatile struct {
	SessionID string `json:"session_id"`
	ReadState
}

// CommunityVolatile состояние прочтения community.
type CommunityVolatile struct {
	BaseURL string `json:"base_url"`
	Room    string `json:"room"`
	PubKey  []byte `json:"pub_key"`
	ReadState
}

// Key возвращает ключ записи community без учета регистра.
func (c *CommunityVolatile) Key() string {
	return CommunityKey(c.BaseURL, c.Room)
}

// LegacyGroupVolatile состояние прочтения legacy-группы.
type LegacyGroupVolatile struct {
	GroupID string `json:"group_id"`
	ReadState
}
