package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/iudanet/confsync/pkg/api"
)

// sendJSON отправляет JSON ответ
func sendJSON(logger *zap.Logger, w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

// sendError отправляет JSON ответ с ошибкой
func sendError(logger *zap.Logger, w http.ResponseWriter, message string, statusCode int) {
	sendJSON(logger, w, api.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	}, statusCode)
}
