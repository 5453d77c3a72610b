package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/iudanet/confsync/internal/server/jwt"
	"github.com/iudanet/confsync/pkg/api"
)

type pubKeyCtxKey struct{}

// PubKey возвращает ключ, подтвержденный токеном запроса.
func PubKey(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(pubKeyCtxKey{}).(string)
	return key, ok
}

// TokenVerifier проверяет токен доступа к swarm.
type TokenVerifier interface {
	Verify(token string) (*api.SwarmClaims, error)
}

var _ TokenVerifier = (*jwt.Verifier)(nil)

// AuthMiddleware создает middleware для проверки JWT токена
// Токен подписан ключом учетной записи; в контекст кладется подтвержденный ключ.
func AuthMiddleware(logger *zap.Logger, verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("Missing Authorization header", zap.String("request_id", RequestID(r.Context())))
				writeError(w, http.StatusUnauthorized, "missing token")
				return
			}

			// Ожидаем формат: "Bearer <token>"
			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				logger.Warn("Invalid Authorization header format", zap.String("request_id", RequestID(r.Context())))
				writeError(w, http.StatusUnauthorized, "invalid token format")
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				logger.Warn("Invalid access token",
					zap.String("request_id", RequestID(r.Context())),
					zap.Error(err))
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), pubKeyCtxKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: msg})
}
