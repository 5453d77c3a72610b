package codec

import "github.com/cockroachdb/errors"

var (
	// ErrSigningFailed - подпись невозможна (нет ключа или ключ некорректен)
	ErrSigningFailed = errors.New("signing failed")
	// ErrVerificationFailed - подпись не прошла проверку
	ErrVerificationFailed = errors.New("verification failed")
	// ErrDecryptFailed - сообщение не удалось расшифровать.
	// Считается разновидностью ErrVerificationFailed.
	ErrDecryptFailed = errors.Mark(errors.New("decrypt failed"), ErrVerificationFailed)
	// ErrParse - данные обрезаны или повреждены
	ErrParse = errors.New("parse error")
	// ErrFieldTooLarge - значение поля превышает допустимый размер
	ErrFieldTooLarge = errors.New("field too large")
)
