package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/iudanet/confsync/internal/models"
	"github.com/iudanet/confsync/internal/server/middleware"
	"github.com/iudanet/confsync/internal/server/storage"
	"github.com/iudanet/confsync/internal/validation"
	"github.com/iudanet/confsync/pkg/api"
)

const (
	// DefaultRetrieveLimit - максимум сообщений в одном ответе retrieve.
	DefaultRetrieveLimit = 256
	// MaxBatchBodySize ограничивает тело batch запроса.
	MaxBatchBodySize = 16 << 20
	// MaxBatchItems ограничивает число сообщений в batch.
	MaxBatchItems = 64
)

// MessageStorage определяет интерфейс хранилища сообщений swarm
type MessageStorage interface {
	StoreBatch(ctx context.Context, pubkey string, messages []*storage.Message, deletes []string) ([]storage.StoreResult, []string, error)
	Retrieve(ctx context.Context, pubkey string, namespace int, since int64, limit int) ([]*storage.Message, error)
	Cursor(ctx context.Context, pubkey string, namespace int) (int64, error)
}

// SwarmHandler обрабатывает запросы к сообщениям swarm
type SwarmHandler struct {
	logger        *zap.Logger
	storage       MessageStorage
	retrieveLimit int
}

// NewSwarmHandler создает новый handler swarm
func NewSwarmHandler(logger *zap.Logger, storage MessageStorage) *SwarmHandler {
	return &SwarmHandler{
		logger:        logger,
		storage:       storage,
		retrieveLimit: DefaultRetrieveLimit,
	}
}

// Batch обрабатывает POST /api/v1/swarm/{pubkey}/batch
// Удаляет устаревшие хеши и сохраняет сообщения одной транзакцией
func (h *SwarmHandler) Batch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pubkey, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var req api.BatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBatchBodySize)).Decode(&req); err != nil {
		h.logger.Warn("failed to decode batch request", zap.Error(err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Stores) > MaxBatchItems {
		sendError(h.logger, w, "too many messages in batch", http.StatusBadRequest)
		return
	}

	messages := make([]*storage.Message, 0, len(req.Stores))
	for _, item := range req.Stores {
		messages = append(messages, &storage.Message{
			Namespace: item.Namespace,
			Seqno:     item.Seqno,
			Data:      item.Data,
		})
	}

	results, deleted, err := h.storage.StoreBatch(ctx, pubkey, messages, req.Delete)
	if err != nil {
		h.logger.Error("failed to store batch", zap.String("request_id", middleware.RequestID(ctx)), zap.Error(err))
		sendError(h.logger, w, "failed to store batch", http.StatusInternalServerError)
		return
	}

	resp := api.BatchResponse{
		Stores:  make([]api.StoreItemResult, 0, len(results)),
		Deleted: deleted,
	}
	for _, res := range results {
		item := api.StoreItemResult{Hash: res.Hash}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		resp.Stores = append(resp.Stores, item)
	}

	h.logger.Info("batch stored",
		zap.String("request_id", middleware.RequestID(ctx)),
		zap.Int("stores", len(req.Stores)),
		zap.Int("deleted", len(deleted)))
	sendJSON(h.logger, w, resp, http.StatusOK)
}

// Retrieve обрабатывает GET /api/v1/swarm/{pubkey}/{namespace}?since=id
// Возвращает сообщения namespace, сохраненные после курсора since
func (h *SwarmHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pubkey, ok := h.authorize(w, r)
	if !ok {
		return
	}

	ns, err := strconv.Atoi(r.PathValue("namespace"))
	if err != nil || !models.Namespace(ns).Valid() {
		sendError(h.logger, w, "unknown namespace", http.StatusBadRequest)
		return
	}

	var since int64
	if s := r.URL.Query().Get("since"); s != "" {
		since, err = strconv.ParseInt(s, 10, 64)
		if err != nil || since < 0 {
			sendError(h.logger, w, "invalid since parameter", http.StatusBadRequest)
			return
		}
	}

	messages, err := h.storage.Retrieve(ctx, pubkey, ns, since, h.retrieveLimit)
	if err != nil {
		h.logger.Error("failed to retrieve messages", zap.String("request_id", middleware.RequestID(ctx)), zap.Error(err))
		sendError(h.logger, w, "failed to retrieve messages", http.StatusInternalServerError)
		return
	}

	resp := api.RetrieveResponse{Messages: make([]api.Message, 0, len(messages))}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, api.Message{
			ID:        m.ID,
			Hash:      m.Hash,
			Namespace: m.Namespace,
			Seqno:     m.Seqno,
			Data:      m.Data,
			StoredAt:  m.StoredAt,
		})
	}

	if n := len(messages); n > 0 {
		resp.Cursor = messages[n-1].ID
	} else {
		// Курсор узла может быть меньше since, если хранилище было очищено
		resp.Cursor, err = h.storage.Cursor(ctx, pubkey, ns)
		if err != nil {
			h.logger.Error("failed to read cursor", zap.Error(err))
			sendError(h.logger, w, "failed to retrieve messages", http.StatusInternalServerError)
			return
		}
	}

	sendJSON(h.logger, w, resp, http.StatusOK)
}

// authorize проверяет, что токен выпущен владельцем swarm из пути
func (h *SwarmHandler) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	pubkey := r.PathValue("pubkey")
	if err := validation.ValidatePubKey(pubkey); err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return "", false
	}

	owner, ok := middleware.PubKey(r.Context())
	if !ok || owner != pubkey {
		h.logger.Warn("swarm access denied", zap.String("request_id", middleware.RequestID(r.Context())))
		sendError(h.logger, w, "token does not grant access to this swarm", http.StatusForbidden)
		return "", false
	}
	return pubkey, true
}
