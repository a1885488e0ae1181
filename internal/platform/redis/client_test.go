package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cms/internal/platform/config"
)

func TestNew_EmptyURL(t *testing.T) {
	c, err := New(config.RedisConfig{}, nil)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(config.RedisConfig{URL: "://nope"}, nil)
	assert.Error(t, err)
}

func TestClient_HealthAndPoolStats(t *testing.T) {
	srv := miniredis.RunT(t)
	metrics := NewPoolMetrics(prometheus.NewRegistry())

	c, err := New(config.RedisConfig{URL: "redis://" + srv.Addr(), PoolSize: 2}, metrics)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Health(context.Background()))

	c.RecordPoolStats()
	first := testutil.ToFloat64(metrics.Hits) + testutil.ToFloat64(metrics.Misses)
	assert.Positive(t, first)
	assert.Positive(t, testutil.ToFloat64(metrics.TotalConns))

	c.RecordPoolStats()
	assert.Equal(t, first, testutil.ToFloat64(metrics.Hits)+testutil.ToFloat64(metrics.Misses),
		"no traffic between calls adds nothing")

	srv.Close()
	assert.Error(t, c.Health(context.Background()))
}
