package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"math/big"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/blake2b"
)

// Параметры Argon2id для ключа локального хранилища
const (
	// Argon2Time - количество итераций (time cost)
	Argon2Time = 1
	// Argon2Memory - объем памяти в KB (64MB = 64*1024 KB)
	Argon2Memory = 64 * 1024
	// Argon2Threads - количество параллельных потоков
	Argon2Threads = 4
	// SaltSize - размер соли в байтах
	SaltSize = 32
	// SeedSize - размер seed учетной записи
	SeedSize = ed25519.SeedSize
)

// Контексты разделяют ключи, выводимые из одного seed.
const (
	namespaceKeyContext = "ConfigSync"
	dumpKeyContext      = "LocalDump"
)

// SessionIDPrefix - префикс session ID (X25519 ключ)
const SessionIDPrefix = "05"

// GenerateSalt генерирует криптографически случайную соль
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(err, "failed to generate salt")
	}
	return salt, nil
}

// GenerateSeed генерирует seed новой учетной записи
func GenerateSeed() ([]byte, error) {
	seed := make([]byte, SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, errors.Wrap(err, "failed to generate seed")
	}
	return seed, nil
}

// DeriveStorageKey выводит ключ шифрования локального хранилища из пароля.
// Использует Argon2id, поэтому подбор пароля по украденному файлу дорог.
func DeriveStorageKey(passphrase string, salt []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase cannot be empty")
	}
	if len(salt) != SaltSize {
		return nil, errors.Newf("salt must be %d bytes, got %d", SaltSize, len(salt))
	}

	return argon2.IDKey([]byte(passphrase), salt, Argon2Time, Argon2Memory, Argon2Threads, KeySize), nil
}

// SigningKeyFromSeed восстанавливает ключевую пару Ed25519 из seed.
// Ключ подписывает конфигурационные сообщения и запросы к swarm.
func SigningKeyFromSeed(seed []byte) (ed25519.PrivateKey, error) {
	if len(seed) != SeedSize {
		return nil, errors.Newf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// NamespaceKey выводит симметричный ключ шифрования сообщений для namespace.
// Разные namespace получают независимые ключи из одного seed.
func NamespaceKey(seed []byte, namespace int) ([]byte, error) {
	if len(seed) != SeedSize {
		return nil, errors.Newf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}

	return deriveKey(seed, namespaceKeyContext, []byte{byte(namespace >> 8), byte(namespace)})
}

// DumpKey выводит ключ шифрования dump'ов на диске.
func DumpKey(seed []byte) ([]byte, error) {
	if len(seed) != SeedSize {
		return nil, errors.Newf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	return deriveKey(seed, dumpKeyContext, nil)
}

func deriveKey(seed []byte, context string, id []byte) ([]byte, error) {
	h, err := blake2b.New256(seed)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create key hash")
	}
	h.Write([]byte(context))
	h.Write(id)

	return h.Sum(nil), nil
}

// curve25519P = 2^255 - 19
var curve25519P = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(19))

// SessionID возвращает session ID учетной записи: 05 и X25519 форма публичного ключа Ed25519.
// u = (1 + y) / (1 - y) mod p
func SessionID(pub ed25519.PublicKey) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", errors.Newf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}

	// y хранится в little-endian, старший бит - знак x
	be := make([]byte, len(pub))
	for i, b := range pub {
		be[len(pub)-1-i] = b
	}
	be[0] &= 0x7f
	y := new(big.Int).SetBytes(be)

	one := big.NewInt(1)
	num := new(big.Int).Add(one, y)
	den := new(big.Int).Sub(one, y)
	den.Mod(den, curve25519P)
	if den.Sign() == 0 {
		return "", errors.New("public key has no X25519 form")
	}
	u := num.Mul(num, den.ModInverse(den, curve25519P))
	u.Mod(u, curve25519P)

	out := u.FillBytes(make([]byte, 32))
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return SessionIDPrefix + hex.EncodeToString(out), nil
}

// PublicKeyHex возвращает hex-представление публичного ключа.
// Используется как адрес swarm для конфигурации учетной записи.
func PublicKeyHex(key ed25519.PrivateKey) string {
	pub, _ := key.Public().(ed25519.PublicKey)
	return hex.EncodeToString(pub)
}

// ParsePublicKeyHex разбирает hex-представление публичного ключа
func ParsePublicKeyHex(s string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode public key")
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, errors.Newf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}
