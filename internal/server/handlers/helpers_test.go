package handlers

import (
	"context"
	"net/http"
	"strings"
	gosync "sync"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/iudanet/confsync/internal/codec"
	"github.com/iudanet/confsync/internal/server/middleware"
	"github.com/iudanet/confsync/internal/server/storage"
	"github.com/iudanet/confsync/pkg/api"
)

var (
	alicePub = strings.Repeat("a", 64)
	bobPub   = strings.Repeat("b", 64)
)

// fakeVerifier принимает токен вида "<pubkey>".
type fakeVerifier struct{}

func (fakeVerifier) Verify(token string) (*api.SwarmClaims, error) {
	if token == "" || token == "bad" {
		return nil, errors.New("bad token")
	}
	return &api.SwarmClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: token}}, nil
}

// fakeStorage - in-memory хранилище сообщений.
type fakeStorage struct {
	err      error
	messages []*storage.Message
	mu       gosync.Mutex
}

func (f *fakeStorage) StoreBatch(_ context.Context, pubkey string, messages []*storage.Message, deletes []string) ([]storage.StoreResult, []string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, nil, f.err
	}

	drop := make(map[string]bool, len(deletes))
	for _, h := range deletes {
		drop[h] = true
	}
	kept := f.messages[:0]
	for _, m := range f.messages {
		if m.PubKey != pubkey || !drop[m.Hash] {
			kept = append(kept, m)
		}
	}
	f.messages = kept

	results := make([]storage.StoreResult, len(messages))
	for i, m := range messages {
		if len(m.Data) == 0 {
			results[i].Err = errors.Wrap(storage.ErrInvalidMessage, "empty message")
			continue
		}
		m.PubKey = pubkey
		m.Hash = codec.MessageHash(m.Data)
		m.ID = int64(len(f.messages) + 1)
		f.messages = append(f.messages, m)
		results[i].Hash = m.Hash
	}
	return results, deletes, nil
}

func (f *fakeStorage) Retrieve(_ context.Context, pubkey string, namespace int, since int64, limit int) ([]*storage.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	var out []*storage.Message
	for _, m := range f.messages {
		if m.PubKey == pubkey && m.Namespace == namespace && m.ID > since && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStorage) Cursor(_ context.Context, pubkey string, namespace int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var cursor int64
	for _, m := range f.messages {
		if m.PubKey == pubkey && m.Namespace == namespace && m.ID > cursor {
			cursor = m.ID
		}
	}
	return cursor, nil
}

func (f *fakeStorage) Ping(context.Context) error {
	return f.err
}

// withAuth пропускает handler через проверку токена, как в роутере.
func withAuth(h http.HandlerFunc) http.Handler {
	return middleware.AuthMiddleware(zap.NewNop(), fakeVerifier{})(h)
}
