// Package identity управляет ключами учетной записи на устройстве.
package identity

import (
	"crypto/ed25519"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/iudanet/confsync/internal/codec"
	"github.com/iudanet/confsync/internal/configstore"
	"github.com/iudanet/confsync/internal/crypto"
	"github.com/iudanet/confsync/internal/models"
)

// ErrUnknownOwner возвращается для объектов, ключей которых у учетной записи нет.
var ErrUnknownOwner = errors.New("no keys for config owner")

// Identity - разблокированная учетная запись: seed и производные ключи.
type Identity struct {
	signingKey ed25519.PrivateKey
	seed       []byte
	dumpKey    []byte
	publicKey  string
	sessionID  string
}

// FromSeed восстанавливает учетную запись из seed.
func FromSeed(seed []byte) (*Identity, error) {
	signingKey, err := crypto.SigningKeyFromSeed(seed)
	if err != nil {
		return nil, err
	}
	sessionID, err := crypto.SessionID(signingKey.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	dumpKey, err := crypto.DumpKey(seed)
	if err != nil {
		return nil, err
	}

	return &Identity{
		seed:       append([]byte(nil), seed...),
		signingKey: signingKey,
		publicKey:  crypto.PublicKeyHex(signingKey),
		sessionID:  sessionID,
		dumpKey:    dumpKey,
	}, nil
}

// PublicKey возвращает hex Ed25519 ключ - адрес swarm учетной записи.
func (i *Identity) PublicKey() string {
	return i.publicKey
}

// SessionID возвращает session ID учетной записи.
func (i *Identity) SessionID() string {
	return i.sessionID
}

// SigningKey возвращает ключ подписи.
func (i *Identity) SigningKey() ed25519.PrivateKey {
	return i.signingKey
}

// DumpKey возвращает ключ шифрования dump'ов.
func (i *Identity) DumpKey() []byte {
	return i.dumpKey
}

// Seed возвращает seed для переноса учетной записи на другое устройство.
func (i *Identity) Seed() []byte {
	return append([]byte(nil), i.seed...)
}

// Sealer собирает Sealer для namespace учетной записи.
// Конфигурация учетной записи шифруется и подписывается ключами из seed;
// для чужих swarm (группы) ключей у учетной записи нет.
func (i *Identity) Sealer(owner string, namespace models.Namespace) (*codec.Sealer, error) {
	if !strings.EqualFold(owner, i.publicKey) {
		return nil, errors.Wrapf(ErrUnknownOwner, "owner %s", owner)
	}
	if !namespace.Valid() || namespace.IsGroupNamespace() {
		return nil, errors.Wrapf(ErrUnknownOwner, "namespace %s", namespace)
	}

	encKey, err := crypto.NamespaceKey(i.seed, int(namespace))
	if err != nil {
		return nil, err
	}

	return &codec.Sealer{
		Namespace:     namespace,
		SigningKey:    i.signingKey,
		VerifyKeys:    []ed25519.PublicKey{i.signingKey.Public().(ed25519.PublicKey)},
		EncryptionKey: encKey,
		Limits:        configstore.LimitsFor(namespace),
	}, nil
}

// Wipe затирает ключи в памяти.
func (i *Identity) Wipe() {
	for _, b := range [][]byte{i.seed, i.signingKey, i.dumpKey} {
		for j := range b {
			b[j] = 0
		}
	}
}
