package api

import "github.com/golang-jwt/jwt/v5"

// TokenIssuer - значение claim iss в токенах доступа к swarm.
const TokenIssuer = "confsync"

// SwarmClaims - claims токена доступа к swarm.
// Subject - hex Ed25519 ключ, которым подписан токен; он же адрес swarm,
// к которому токен дает доступ.
type SwarmClaims struct {
	jwt.RegisteredClaims
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}
