package requesttime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMiddleware_PinsArrivalTime(t *testing.T) {
	fixed := time.Date(2026, 6, 15, 9, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	Clock = func() time.Time { return fixed }
	t.Cleanup(func() { Clock = time.Now })

	var first, second time.Time
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first = Now(r.Context())
		Clock = func() time.Time { return fixed.Add(time.Hour) }
		second = Now(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.True(t, fixed.Equal(first))
	assert.Equal(t, first, second, "one request sees one clock")
	assert.Equal(t, time.UTC, first.Location())
}

func TestNow_FallbackToClock(t *testing.T) {
	before := time.Now()
	result := Now(context.Background())
	after := time.Now()

	assert.False(t, result.Before(before))
	assert.False(t, result.After(after))
}

func TestWithTime_OverridesExistingTime(t *testing.T) {
	original := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	override := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	ctx := WithTime(context.Background(), original)
	ctx = WithTime(ctx, override)

	assert.Equal(t, override, Now(ctx))
}
