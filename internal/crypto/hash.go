package crypto

import (
	"encoding/base64"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// MessageHash вычисляет идентификатор сообщения в swarm:
// BLAKE2b-256 от payload в base64url без padding.
// Вычисляется одинаково на клиенте и на сервере.
func MessageHash(payload []byte) string {
	sum := blake2b.Sum256(payload)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Digest вычисляет hex BLAKE2b-256 от данных.
// Используется для сравнения содержимого документов без хранения копии.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
