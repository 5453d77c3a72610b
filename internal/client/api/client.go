// Package api реализует транспорт синхронизации поверх HTTP API узла swarm.
package api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	clientsync "github.com/iudanet/confsync/internal/client/sync"
	"github.com/iudanet/confsync/internal/merge"
	"github.com/iudanet/confsync/internal/models"
	"github.com/iudanet/confsync/pkg/api"
)

const (
	defaultTimeout = 30 * time.Second
	maxRedirects   = 10
	maxBodySize    = 16 << 20
)

// Client представляет HTTP клиент узла swarm
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	signingKey ed25519.PrivateKey
	baseURL    string
	tokenTTL   time.Duration
}

var _ clientsync.Transport = (*Client)(nil)

// Option настраивает Client.
type Option func(*Client)

// WithTimeout задает таймаут HTTP запроса.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit ограничивает частоту запросов к swarm.
// perSecond <= 0 снимает ограничение.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithTokenTTL задает время жизни токенов доступа.
func WithTokenTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.tokenTTL = ttl
		}
	}
}

// NewClient создает новый клиент узла swarm.
// signingKey - ключ учетной записи, им подписываются токены доступа.
func NewClient(baseURL string, signingKey ed25519.PrivateKey, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		signingKey: signingKey,
		logger:     logger,
		tokenTTL:   DefaultTokenTTL,
		limiter:    rate.NewLimiter(rate.Limit(10), 5),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errors.Newf("stopped after %d redirects", maxRedirects)
				}
				// Копируем заголовок Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendBatch сохраняет сообщения и удаляет устаревшие хеши в swarm dest.
func (c *Client) SendBatch(ctx context.Context, dest clientsync.Destination, batch *clientsync.Batch) (*clientsync.BatchResult, error) {
	req := api.BatchRequest{
		Stores: make([]api.StoreItem, 0, len(batch.Stores)),
		Delete: batch.Delete,
	}
	for _, s := range batch.Stores {
		req.Stores = append(req.Stores, api.StoreItem{
			Namespace: int(s.Namespace),
			Seqno:     s.Seqno,
			Data:      s.Payload,
		})
	}

	var resp api.BatchResponse
	path := "/api/v1/swarm/" + url.PathEscape(dest.PubKey) + "/batch"
	if err := c.doRequest(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, errors.Wrap(err, "batch request failed")
	}

	result := &clientsync.BatchResult{
		Stores:  make([]clientsync.StoreResult, 0, len(resp.Stores)),
		Deleted: resp.Deleted,
	}
	for _, item := range resp.Stores {
		var itemErr error
		if item.Error != "" {
			itemErr = errors.Wrap(ErrRejected, item.Error)
		}
		result.Stores = append(result.Stores, clientsync.StoreResult{Hash: item.Hash, Err: itemErr})
	}

	c.logger.Debug("batch sent",
		zap.String("destination", dest.PubKey),
		zap.Int("stores", len(batch.Stores)),
		zap.Int("delete", len(batch.Delete)),
		zap.Int("deleted", len(resp.Deleted)))
	return result, nil
}

// Fetch забирает сообщения namespace, сохраненные после курсора since.
func (c *Client) Fetch(ctx context.Context, dest clientsync.Destination, namespace models.Namespace, since int64) (*clientsync.FetchResult, error) {
	path := fmt.Sprintf("/api/v1/swarm/%s/%d?since=%s",
		url.PathEscape(dest.PubKey), int(namespace), strconv.FormatInt(since, 10))

	var resp api.RetrieveResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, errors.Wrapf(err, "retrieve %s failed", namespace)
	}

	result := &clientsync.FetchResult{
		Cursor:   resp.Cursor,
		Messages: make([]merge.RemoteMessage, 0, len(resp.Messages)),
	}
	for _, m := range resp.Messages {
		result.Messages = append(result.Messages, merge.RemoteMessage{Hash: m.Hash, Payload: m.Data})
	}
	return result, nil
}

// Health проверяет доступность узла swarm.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/health", nil, &resp); err != nil {
		return nil, errors.Wrap(err, "health request failed")
	}
	return &resp, nil
}

// doRequest выполняет HTTP запрос
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter")
	}

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request body")
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := SignToken(c.signingKey, c.tokenTTL)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.WithStack(ctxErr)
		}
		return errors.Wrap(ErrNetwork, err.Error())
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return errors.Wrap(ErrNetwork, "failed to read response body: "+err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return errors.Wrap(ErrUnavailable, "failed to decode response: "+err.Error())
		}
	}
	return nil
}

// statusError сопоставляет HTTP статус виду ошибки.
func statusError(status int, body []byte) error {
	msg := string(body)
	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		msg = errResp.Error
		if errResp.Message != "" {
			msg += ": " + errResp.Message
		}
	}

	var kind error
	switch {
	case status == http.StatusTooManyRequests:
		kind = ErrRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = ErrUnauthorized
	case status >= 500, status == http.StatusRequestTimeout:
		kind = ErrUnavailable
	default:
		kind = ErrRejected
	}
	return errors.Wrapf(kind, "server error (%d): %s", status, msg)
}
