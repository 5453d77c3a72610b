package models

import (
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
)

// Community представляет открытую группу (community) в namespace UserGroups.
// Ключ записи - пара (base URL в нижнем регистре, room в нижнем регистре),
// но регистр room сохраняется таким, каким он был при первой записи.
type Community struct {
	BaseURL  string `json:"base_url"`
	Room     string `json:"room"`
	PubKey   []byte `json:"pub_key"`
	Priority int64  `json:"priority"`
}

// Key возвращает ключ записи community.
func (c *Community) Key() string {
	return CommunityKey(c.BaseURL, c.Room)
}

// Hidden сообщает, что community скрыто или удалено.
func (c *Community) Hidden() bool {
	return IsHidden(c.Priority)
}

// FullURL собирает URL вида https://host/room?public_key=<hex>.
func (c *Community) FullURL() string {
	return c.BaseURL + "/" + c.Room + "?public_key=" + hex.EncodeToString(c.PubKey)
}

// Clone создает глубокую копию community.
func (c *Community) Clone() *Community {
	clone := *c
	clone.PubKey = append([]byte(nil), c.PubKey...)
	return &clone
}

// CommunityKey строит ключ без учета регистра: base URL нормализуется,
// room приводится к нижнему регистру только для ключа.
func CommunityKey(baseURL, room string) string {
	normalized, err := NormalizeBaseURL(baseURL)
	if err != nil {
		normalized = strings.ToLower(baseURL)
	}
	return normalized + "/" + strings.ToLower(room)
}

// NormalizeBaseURL приводит схему и хост к нижнему регистру,
// убирает порт по умолчанию и завершающий слэш.
func NormalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("community URL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrap(err, "invalid community URL")
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", errors.Newf("invalid community URL scheme %q", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", errors.New("community URL has no host")
	}
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	result := scheme + "://" + host
	if port != "" {
		result += ":" + port
	}
	if path := strings.Trim(u.EscapedPath(), "/"); path != "" {
		result += "/" + path
	}
	if len(result) > MaxCommunityURLLength {
		return "", errors.Newf("community URL exceeds %d bytes", MaxCommunityURLLength)
	}
	return result, nil
}

// ParseCommunityURL разбирает полный URL community:
//
//	https://example.com/SomeRoom?public_key=<64 hex>
//	https://example.com/r/SomeRoom?public_key=<base64>
//
// Возвращает нормализованный сервер, room с сохраненным регистром и публичный ключ.
func ParseCommunityURL(raw string) (server, room string, pubKey []byte, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", nil, errors.Wrap(err, "invalid community URL")
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch {
	case len(segments) == 1 && segments[0] != "":
		room = segments[0]
	case len(segments) == 2 && segments[0] == "r" && segments[1] != "":
		room = segments[1]
	default:
		return "", "", nil, errors.New("community URL must contain exactly one room")
	}
	if len(room) > MaxCommunityRoomLength {
		return "", "", nil, errors.Newf("community room exceeds %d bytes", MaxCommunityRoomLength)
	}

	base := &url.URL{Scheme: u.Scheme, Host: u.Host}
	server, err = NormalizeBaseURL(base.String())
	if err != nil {
		return "", "", nil, err
	}

	pubKey, err = DecodeCommunityPubKey(u.Query().Get("public_key"))
	if err != nil {
		return "", "", nil, err
	}

	return server, room, pubKey, nil
}

// DecodeCommunityPubKey принимает ключ в hex (64 символа) или base64 (43/44 символа).
func DecodeCommunityPubKey(encoded string) ([]byte, error) {
	var (
		key []byte
		err error
	)
	switch len(encoded) {
	case 64:
		key, err = hex.DecodeString(encoded)
	case 43:
		key, err = base64.RawURLEncoding.DecodeString(encoded)
		if err != nil {
			key, err = base64.RawStdEncoding.DecodeString(encoded)
		}
	case 44:
		key, err = base64.URLEncoding.DecodeString(encoded)
		if err != nil {
			key, err = base64.StdEncoding.DecodeString(encoded)
		}
	case 0:
		return nil, errors.New("community URL has no public_key")
	default:
		return nil, errors.Newf("invalid community public key length %d", len(encoded))
	}
	if err != nil {
		return nil, errors.Wrap(err, "invalid community public key")
	}
	if len(key) != CommunityPubKeyLength {
		return nil, errors.Newf("community public key must be %d bytes, got %d", CommunityPubKeyLength, len(key))
	}
	return key, nil
}
