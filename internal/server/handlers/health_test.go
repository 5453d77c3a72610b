package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iudanet/confsync/pkg/api"
)

func TestHealthHandler_Health(t *testing.T) {
	tests := []struct {
		dbErr      error
		name       string
		wantStatus string
		wantCode   int
	}{
		{name: "ok", wantCode: http.StatusOK, wantStatus: "ok"},
		{name: "database down", dbErr: errors.New("disk I/O error"), wantCode: http.StatusServiceUnavailable, wantStatus: "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(zap.NewNop(), &fakeStorage{err: tt.dbErr})

			w := httptest.NewRecorder()
			handler.Health(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

			resp := w.Result()
			defer func() {
				assert.NoError(t, resp.Body.Close())
			}()

			assert.Equal(t, tt.wantCode, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

			var health api.HealthResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
			assert.Equal(t, tt.wantStatus, health.Status)
			assert.False(t, health.Time.IsZero())
		})
	}
}
