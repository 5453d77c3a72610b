package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/iudanet/confsync/pkg/api"
)

// Pinger проверяет доступность хранилища
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler обрабатывает health check запросы
type HealthHandler struct {
	logger *zap.Logger
	db     Pinger
}

// NewHealthHandler создает новый handler для health check
func NewHealthHandler(logger *zap.Logger, db Pinger) *HealthHandler {
	return &HealthHandler{
		logger: logger,
		db:     db,
	}
}

// Health обрабатывает GET /api/v1/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error("database unavailable", zap.Error(err))
		sendJSON(h.logger, w, api.HealthResponse{Status: "unavailable", Time: time.Now().UTC()}, http.StatusServiceUnavailable)
		return
	}

	sendJSON(h.logger, w, api.HealthResponse{Status: "ok", Time: time.Now().UTC()}, http.StatusOK)
}
