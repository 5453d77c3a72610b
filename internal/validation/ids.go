package validation

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

// SessionIDPattern определяет формат session ID:
// префикс 05 и 32-байтовый X25519 публичный ключ в hex (всего 66 символов)
var SessionIDPattern = regexp.MustCompile(`^05[0-9a-f]{64}$`)

// PubKeyPattern определяет формат hex-кодированного 32-байтового Ed25519 ключа
var PubKeyPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

const (
	// SessionIDLen длина session ID в hex символах
	SessionIDLen = 66
	// SessionIDPrefix префикс session ID и ID legacy-группы
	SessionIDPrefix = "05"
	// MinPassphraseLen минимальная длина пароля локального хранилища
	MinPassphraseLen = 12
)

// ValidateSessionID проверяет, что идентификатор соответствует формату session ID
// Формат: 05 + 64 hex символа в нижнем регистре
func ValidateSessionID(id string) error {
	if id == "" {
		return errors.New("session ID cannot be empty")
	}

	if len(id) != SessionIDLen {
		return errors.Newf("session ID must be %d characters long, got %d", SessionIDLen, len(id))
	}

	if !strings.HasPrefix(id, SessionIDPrefix) {
		return errors.Newf("session ID must start with %q", SessionIDPrefix)
	}

	if !SessionIDPattern.MatchString(id) {
		return errors.New("session ID can only contain lowercase hex characters")
	}

	return nil
}

// ValidateLegacyGroupID проверяет ID legacy-группы.
// Legacy-группы адресуются так же, как пользователи: 05 + X25519 ключ.
func ValidateLegacyGroupID(id string) error {
	if err := ValidateSessionID(id); err != nil {
		return errors.Wrap(err, "invalid legacy group ID")
	}
	return nil
}

// ValidatePubKey проверяет hex-кодированный Ed25519 публичный ключ
// (используется как адрес swarm)
func ValidatePubKey(key string) error {
	if !PubKeyPattern.MatchString(key) {
		return errors.New("public key must be 64 lowercase hex characters")
	}
	return nil
}

// ValidatePassphrase проверяет минимальные требования к паролю локального хранилища
// Минимум 12 символов
func ValidatePassphrase(passphrase string) error {
	if passphrase == "" {
		return errors.New("passphrase cannot be empty")
	}

	if len(passphrase) < MinPassphraseLen {
		return errors.Newf("passphrase must be at least %d characters long", MinPassphraseLen)
	}

	return nil
}
