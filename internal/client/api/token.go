package api

import (
	"crypto/ed25519"
	"encoding/hex"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iudanet/confsync/pkg/api"
)

// DefaultTokenTTL - время жизни токена доступа к swarm.
const DefaultTokenTTL = time.Minute

// SignToken создает токен доступа к swarm ключа key.
// Токен подписывается самим ключом учетной записи (EdDSA).
func SignToken(key ed25519.PrivateKey, ttl time.Duration) (string, error) {
	if len(key) != ed25519.PrivateKeySize {
		return "", errors.Newf("invalid signing key length %d", len(key))
	}

	now := time.Now()
	claims := api.SwarmClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   hex.EncodeToString(key.Public().(ed25519.PublicKey)),
			Issuer:    api.TokenIssuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}
	return signed, nil
}
