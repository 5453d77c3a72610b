package cli

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

// PassphraseEnv - переменная окружения с паролем локального хранилища.
const PassphraseEnv = "CONFSYNC_PASSPHRASE"

// readPassphrase получает пароль из источников в порядке приоритета:
// 1. Переменная окружения CONFSYNC_PASSPHRASE
// 2. Файл из --passphrase-file
// 3. Интерактивный ввод (при confirm - с повтором)
func (c *Cli) readPassphrase(confirm bool) (string, error) {
	if env := os.Getenv(PassphraseEnv); env != "" {
		return env, nil
	}

	if c.passphraseFile != "" {
		content, err := os.ReadFile(c.passphraseFile)
		if err != nil {
			return "", errors.Wrap(err, "failed to read passphrase file")
		}
		// Убираем trailing newline/whitespace
		passphrase := strings.TrimSpace(string(content))
		if passphrase == "" {
			return "", errors.New("passphrase file is empty")
		}
		return passphrase, nil
	}

	passphrase, err := c.io.ReadPassword("Passphrase: ")
	if err != nil {
		return "", errors.Wrap(err, "failed to read passphrase")
	}
	if passphrase == "" {
		return "", errors.New("passphrase cannot be empty")
	}

	if confirm {
		again, err := c.io.ReadPassword("Repeat passphrase: ")
		if err != nil {
			return "", errors.Wrap(err, "failed to read passphrase")
		}
		if again != passphrase {
			return "", errors.New("passphrases do not match")
		}
	}
	return passphrase, nil
}
