package models

import "bytes"

// ProfilePicture описывает аватар: URL зашифрованного файла и симметричный ключ к нему.
type ProfilePicture struct {
	URL string `json:"url"`
	Key []byte `json:"key"` // 32 байта либо пусто
}

// Empty сообщает, что аватар не задан.
func (p ProfilePicture) Empty() bool {
	return p.URL == "" && len(p.Key) == 0
}

// Equal сравнивает два аватара побайтно.
func (p ProfilePicture) Equal(other ProfilePicture) bool {
	return p.URL == other.URL && bytes.Equal(p.Key, other.Key)
}

// UserProfile - единственная запись профиля пользователя.
type UserProfile struct {
	Name               string         `json:"name"`
	Picture            ProfilePicture `json:"picture"`
	NoteToSelfPriority int64          `json:"note_to_self_priority"`
}
