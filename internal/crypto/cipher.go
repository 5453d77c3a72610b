package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// NonceSize - размер nonce для AES-GCM (12 bytes стандартный размер)
	NonceSize = 12
	// KeySize - размер симметричного ключа
	KeySize = 32
)

// Encrypt шифрует данные с использованием AES-256-GCM.
// Используется для хранения dump'ов и ключей на диске.
// Формат результата: nonce (12 bytes) + ciphertext + auth_tag (16 bytes)
func Encrypt(plaintext, key []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, errors.New("plaintext cannot be empty")
	}
	if len(key) != KeySize {
		return nil, errors.Newf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cipher")
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create GCM")
	}

	// Генерируем случайный nonce
	nonce := make([]byte, NonceSize, NonceSize+len(plaintext)+aesGCM.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "failed to generate nonce")
	}

	// nonce + ciphertext + auth_tag
	return aesGCM.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt дешифрует данные, зашифрованные с помощью Encrypt
func Decrypt(encrypted, key []byte) ([]byte, error) {
	if len(encrypted) < NonceSize {
		return nil, errors.New("encrypted data too short")
	}
	if len(key) != KeySize {
		return nil, errors.Newf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cipher")
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create GCM")
	}

	plaintext, err := aesGCM.Open(nil, encrypted[:NonceSize], encrypted[NonceSize:], nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decrypt: authentication failed or corrupted data")
	}

	return plaintext, nil
}

// SealDeterministic шифрует данные XChaCha20-Poly1305 с nonce,
// выведенным из ключа и открытого текста.
// Одинаковый вход дает одинаковый шифротекст, поэтому хеш сообщения
// зависит только от содержимого конфигурации.
// Формат результата: nonce (24 bytes) + ciphertext + auth_tag (16 bytes)
func SealDeterministic(plaintext, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, errors.Newf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create xchacha20")
	}

	mac, err := blake2b.New256(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create nonce hash")
	}
	mac.Write(plaintext)

	out := make([]byte, 0, chacha20poly1305.NonceSizeX+len(plaintext)+aead.Overhead())
	out = append(out, mac.Sum(nil)[:chacha20poly1305.NonceSizeX]...)

	return aead.Seal(out, out[:chacha20poly1305.NonceSizeX], plaintext, nil), nil
}

// OpenDeterministic дешифрует данные, зашифрованные SealDeterministic
func OpenDeterministic(sealed, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, errors.Newf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	if len(sealed) < chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, errors.New("encrypted data too short")
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create xchacha20")
	}

	nonce := sealed[:chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, sealed[chacha20poly1305.NonceSizeX:], nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decrypt: authentication failed or corrupted data")
	}

	return plaintext, nil
}
