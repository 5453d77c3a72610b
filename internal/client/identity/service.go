package identity

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/iudanet/confsync/internal/client/storage"
	"github.com/iudanet/confsync/internal/crypto"
	"github.com/iudanet/confsync/internal/validation"
)

var (
	ErrIdentityExists  = errors.New("identity already exists")
	ErrWrongPassphrase = errors.New("wrong passphrase")
)

// Service создает и разблокирует учетную запись.
// Seed хранится зашифрованным ключом, выведенным из пароля (Argon2id).
type Service struct {
	storage storage.IdentityStorage
	logger  *zap.Logger
}

// NewService создает сервис учетной записи
func NewService(st storage.IdentityStorage, logger *zap.Logger) *Service {
	return &Service{storage: st, logger: logger}
}

// Create генерирует новую учетную запись и сохраняет ее.
func (s *Service) Create(ctx context.Context, passphrase string) (*Identity, error) {
	seed, err := crypto.GenerateSeed()
	if err != nil {
		return nil, err
	}
	return s.Import(ctx, seed, passphrase)
}

// Import сохраняет учетную запись с известным seed (второе устройство).
func (s *Service) Import(ctx context.Context, seed []byte, passphrase string) (*Identity, error) {
	if err := validation.ValidatePassphrase(passphrase); err != nil {
		return nil, errors.Wrap(err, "invalid passphrase")
	}

	exists, err := s.storage.HasIdentity(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to check identity")
	}
	if exists {
		return nil, ErrIdentityExists
	}

	id, err := FromSeed(seed)
	if err != nil {
		return nil, errors.Wrap(err, "invalid seed")
	}

	// 1. Генерируем соль
	salt, err := crypto.GenerateSalt()
	if err != nil {
		return nil, err
	}

	// 2. Выводим ключ из пароля
	key, err := crypto.DeriveStorageKey(passphrase, salt)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive key")
	}

	// 3. Шифруем seed
	encrypted, err := crypto.Encrypt(seed, key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encrypt seed")
	}

	if err := s.storage.SaveIdentity(ctx, &storage.IdentityData{
		PublicKey:     id.PublicKey(),
		SessionID:     id.SessionID(),
		EncryptedSeed: encrypted,
		Salt:          salt,
		CreatedAt:     time.Now().Unix(),
	}); err != nil {
		return nil, errors.Wrap(err, "failed to save identity")
	}

	s.logger.Info("identity created",
		zap.String("public_key", id.PublicKey()),
		zap.String("session_id", id.SessionID()))
	return id, nil
}

// Unlock расшифровывает seed паролем.
func (s *Service) Unlock(ctx context.Context, passphrase string) (*Identity, error) {
	data, err := s.storage.GetIdentity(ctx)
	if err != nil {
		return nil, err
	}

	key, err := crypto.DeriveStorageKey(passphrase, data.Salt)
	if err != nil {
		return nil, errors.Mark(err, ErrWrongPassphrase)
	}
	seed, err := crypto.Decrypt(data.EncryptedSeed, key)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to decrypt seed"), ErrWrongPassphrase)
	}

	id, err := FromSeed(seed)
	if err != nil {
		return nil, errors.Wrap(err, "stored seed is corrupted")
	}
	if id.PublicKey() != data.PublicKey {
		return nil, errors.Newf("stored seed does not match public key %s", data.PublicKey)
	}
	return id, nil
}

// Info возвращает сохраненные открытые данные учетной записи без пароля.
func (s *Service) Info(ctx context.Context) (*storage.IdentityData, error) {
	return s.storage.GetIdentity(ctx)
}

// Delete удаляет учетную запись с устройства.
func (s *Service) Delete(ctx context.Context) error {
	if err := s.storage.DeleteIdentity(ctx); err != nil {
		return err
	}
	s.logger.Info("identity deleted")
	return nil
}
