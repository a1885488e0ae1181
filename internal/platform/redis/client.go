package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"cms/internal/platform/config"
)

// PoolMetrics mirrors go-redis pool statistics into Prometheus.
type PoolMetrics struct {
	Hits       prometheus.Counter
	Misses     prometheus.Counter
	Timeouts   prometheus.Counter
	StaleConns prometheus.Counter
	TotalConns prometheus.Gauge
	IdleConns  prometheus.Gauge
}

// NewPoolMetrics registers the pool collectors on reg.
func NewPoolMetrics(reg prometheus.Registerer) *PoolMetrics {
	m := &PoolMetrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cms_redis_pool_hits_total",
			Help: "Number of times a connection was found in the pool",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cms_redis_pool_misses_total",
			Help: "Number of times a connection was not found in the pool",
		}),
		Timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cms_redis_pool_timeouts_total",
			Help: "Number of times a connection was not obtained due to timeout",
		}),
		StaleConns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cms_redis_pool_stale_conns_total",
			Help: "Number of stale connections removed from the pool",
		}),
		TotalConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cms_redis_pool_total_conns",
			Help: "Number of total connections in the pool",
		}),
		IdleConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cms_redis_pool_idle_conns",
			Help: "Number of idle connections in the pool",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Hits, m.Misses, m.Timeouts, m.StaleConns, m.TotalConns, m.IdleConns)
	}
	return m
}

// Client wraps the go-redis client with health checking capabilities.
type Client struct {
	*redis.Client
	metrics *PoolMetrics

	mu        sync.Mutex
	lastStats *redis.PoolStats
}

// New creates a Redis client from cfg and pings it.
// Returns nil if the URL is empty.
func New(cfg config.RedisConfig, metrics *PoolMetrics) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{Client: client, metrics: metrics}, nil
}

// Health checks if the Redis connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.Client.Close()
}

// RecordPoolStats publishes the pool statistics accumulated since the last call.
func (c *Client) RecordPoolStats() {
	if c.metrics == nil {
		return
	}
	stats := c.PoolStats()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.TotalConns.Set(float64(stats.TotalConns))
	c.metrics.IdleConns.Set(float64(stats.IdleConns))

	var last redis.PoolStats
	if c.lastStats != nil {
		last = *c.lastStats
	}
	addDelta(c.metrics.Hits, stats.Hits, last.Hits)
	addDelta(c.metrics.Misses, stats.Misses, last.Misses)
	addDelta(c.metrics.Timeouts, stats.Timeouts, last.Timeouts)
	addDelta(c.metrics.StaleConns, stats.StaleConns, last.StaleConns)

	c.lastStats = stats
}

func addDelta(counter prometheus.Counter, current, previous uint32) {
	if current > previous {
		counter.Add(float64(current - previous))
	}
}
