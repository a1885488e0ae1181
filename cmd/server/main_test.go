package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cms/internal/consent/models"
	"cms/internal/platform/config"
)

func testConfig(store string) config.Server {
	return config.Server{
		Environment: "test",
		Store:       store,
		Consent: config.ConsentConfig{
			RedirectTTL:      10 * time.Minute,
			AuthorisationTTL: time.Hour,
		},
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNewApp_InMemory(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApp(context.Background(), testConfig(config.StoreMemory), log, newRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	c, err := a.service.CreateConsent(context.Background(), &models.CreateConsentRequest{
		InstanceID:      "UNDEFINED",
		Type:            models.ConsentTypeAIS,
		ValidUntil:      time.Now().AddDate(0, 1, 0),
		FrequencyPerDay: 4,
		TppInfo:         models.TppInfo{AuthorisationNumber: "PSDDE-BAFIN-000001"},
	})
	require.NoError(t, err)

	ok, err := a.service.ConfirmConsent(context.Background(), c.ExternalID, c.InstanceID)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, http.StatusOK, get(t, a.router, "/health/ready").Code)

	metrics := get(t, a.router, "/metrics")
	require.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), `cms_consent_transitions_total{status="VALID"} 1`)
	assert.Contains(t, metrics.Body.String(), "go_goroutines")
}

func TestNewApp_Redis(t *testing.T) {
	srv := miniredis.RunT(t)
	cfg := testConfig(config.StoreRedis)
	cfg.Redis.URL = "redis://" + srv.Addr()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApp(context.Background(), cfg, log, newRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Equal(t, http.StatusOK, get(t, a.router, "/health/ready").Code)

	srv.Close()
	assert.Equal(t, http.StatusServiceUnavailable, get(t, a.router, "/health/ready").Code)
}

func TestNewApp_UnreachableRedis(t *testing.T) {
	cfg := testConfig(config.StoreRedis)
	cfg.Redis.URL = "redis://127.0.0.1:1"
	cfg.Redis.DialTimeout = 100 * time.Millisecond

	_, err := newApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), newRegistry())
	assert.ErrorContains(t, err, "connect redis")
}
