// Package jwt проверяет токены доступа к swarm.
// Токен подписан Ed25519 ключом, hex которого указан в claim sub:
// владение ключом и есть право доступа к его swarm.
package jwt

import (
	"crypto/ed25519"
	"encoding/hex"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/iudanet/confsync/internal/validation"
	"github.com/iudanet/confsync/pkg/api"
)

// ErrInvalidToken возвращается для любого отклоненного токена.
var ErrInvalidToken = errors.New("invalid token")

// DefaultMaxAge - максимальное время жизни принимаемого токена.
const DefaultMaxAge = 5 * time.Minute

// Verifier validates swarm access tokens
type Verifier struct {
	now    func() time.Time
	maxAge time.Duration
	leeway time.Duration
}

// NewVerifier creates a new verifier
// maxAge ограничивает exp - iat, чтобы клиент не выпускал бессрочные токены
func NewVerifier(maxAge time.Duration) *Verifier {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Verifier{
		maxAge: maxAge,
		leeway: 30 * time.Second,
		now:    time.Now,
	}
}

// Verify validates and parses swarm access token
func (v *Verifier) Verify(tokenString string) (*api.SwarmClaims, error) {
	claims := &api.SwarmClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, keyFromSubject,
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(api.TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to parse token"), ErrInvalidToken)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.IssuedAt == nil {
		return nil, errors.Wrap(ErrInvalidToken, "missing iat")
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl > v.maxAge {
		return nil, errors.Wrapf(ErrInvalidToken, "token lifetime %s exceeds %s", ttl, v.maxAge)
	}

	return claims, nil
}

// keyFromSubject достает ключ проверки подписи из самого токена
func keyFromSubject(token *jwt.Token) (any, error) {
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return nil, err
	}
	if err := validation.ValidatePubKey(sub); err != nil {
		return nil, errors.Wrap(err, "invalid subject")
	}
	raw, err := hex.DecodeString(sub)
	if err != nil {
		return nil, errors.Wrap(err, "invalid subject")
	}
	return ed25519.PublicKey(raw), nil
}
