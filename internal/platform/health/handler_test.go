package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h *Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	h.Register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestLivenessAndStatus(t *testing.T) {
	h := New("test", "memory")

	assert.Equal(t, http.StatusOK, serve(t, h, "/health/live").Code)

	rec := serve(t, h, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, "test", status.Environment)
	assert.Equal(t, "memory", status.Store)
}

func TestReadiness(t *testing.T) {
	h := New("test", "postgres")
	h.RegisterCheck("store", func(context.Context) error { return nil })

	rec := serve(t, h, "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)

	h.RegisterCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	rec = serve(t, h, "/health/ready")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body ReadinessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "not_ready", body.Status)
	assert.Equal(t, "up", body.Checks["store"])
	assert.Equal(t, "down: connection refused", body.Checks["redis"])
}
