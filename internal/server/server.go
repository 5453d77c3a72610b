// Package server собирает HTTP API узла swarm.
package server

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/iudanet/confsync/internal/server/handlers"
	"github.com/iudanet/confsync/internal/server/middleware"
)

// Storage - хранилище, нужное узлу swarm.
type Storage interface {
	handlers.MessageStorage
	handlers.Pinger
}

// Dependencies описывает зависимости HTTP API.
type Dependencies struct {
	Storage     Storage
	Verifier    middleware.TokenVerifier
	RateLimiter *middleware.RateLimiter // nil - без ограничения частоты
	Logger      *zap.Logger
}

// NewHTTPHandler собирает маршруты и middleware узла swarm.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Storage == nil {
		return nil, errors.New("storage is required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("token verifier is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	health := handlers.NewHealthHandler(logger, deps.Storage)
	swarm := handlers.NewSwarmHandler(logger, deps.Storage)
	auth := middleware.AuthMiddleware(logger, deps.Verifier)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", health.Health)
	mux.Handle("POST /api/v1/swarm/{pubkey}/batch", auth(http.HandlerFunc(swarm.Batch)))
	mux.Handle("GET /api/v1/swarm/{pubkey}/{namespace}", auth(http.HandlerFunc(swarm.Retrieve)))

	var handler http.Handler = mux
	if deps.RateLimiter != nil {
		handler = deps.RateLimiter.Middleware(handler)
	}
	handler = middleware.LoggingWithSkip(logger, []string{"/api/v1/health"})(handler)
	handler = middleware.RecoveryMiddleware(logger)(handler)

	return handler, nil
}
