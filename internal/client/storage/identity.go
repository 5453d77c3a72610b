package storage

import (
	"context"
)

// IdentityStorage defines interface for storing account identity on client.
// This is the lowest storage layer - it works with raw data (seed is already encrypted)
// and doesn't perform any encryption/decryption itself.
type IdentityStorage interface {
	// SaveIdentity stores identity data as-is
	SaveIdentity(ctx context.Context, identity *IdentityData) error

	// GetIdentity retrieves stored identity
	// Returns ErrIdentityNotFound if no identity exists
	GetIdentity(ctx context.Context) (*IdentityData, error)

	// DeleteIdentity removes stored identity
	DeleteIdentity(ctx context.Context) error

	// HasIdentity checks if identity exists
	HasIdentity(ctx context.Context) (bool, error)
}

// IdentityData represents account identity in storage.
// EncryptedSeed is sealed with a key derived from the passphrase and Salt;
// the decryption happens in identity layer.
type IdentityData struct {
	PublicKey     string `json:"public_key"` // PublicKey hex Ed25519 ключ учетной записи
	SessionID     string `json:"session_id"`
	EncryptedSeed []byte `json:"encrypted_seed"`
	Salt          []byte `json:"salt"`
	CreatedAt     int64  `json:"created_at"`
}
