package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store backends selectable via CMS_STORE.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Server captures process level configuration.
type Server struct {
	Addr           string
	Environment    string
	Store          string
	TracingEnabled bool
	Database       DatabaseConfig
	Redis          RedisConfig
	Consent        ConsentConfig
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ConsentConfig holds the lifecycle tunables.
type ConsentConfig struct {
	RedirectTTL      time.Duration
	AuthorisationTTL time.Duration
	MaxLifetimeDays  int
	ExpiredRetention time.Duration
}

// Load reads an optional .env file and then the environment.
// A missing .env file is not an error.
func Load(envFiles ...string) (Server, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return Server{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:        envOr("CMS_ADDR", ":8080"),
		Environment: envOr("CMS_ENV", "development"),
		Store:       envOr("CMS_STORE", StoreMemory),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Consent: ConsentConfig{
			RedirectTTL:      10 * time.Minute,
			AuthorisationTTL: 24 * time.Hour,
		},
	}

	var err error
	if cfg.Consent.RedirectTTL, err = durationEnv("CMS_REDIRECT_TTL", cfg.Consent.RedirectTTL); err != nil {
		return Server{}, err
	}
	if cfg.Consent.AuthorisationTTL, err = durationEnv("CMS_AUTHORISATION_TTL", cfg.Consent.AuthorisationTTL); err != nil {
		return Server{}, err
	}
	if cfg.Consent.ExpiredRetention, err = durationEnv("CMS_EXPIRED_RETENTION", 0); err != nil {
		return Server{}, err
	}
	if cfg.Consent.MaxLifetimeDays, err = intEnv("CMS_MAX_CONSENT_LIFETIME_DAYS", 0); err != nil {
		return Server{}, err
	}
	if cfg.Database.MaxOpenConns, err = intEnv("DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns); err != nil {
		return Server{}, err
	}
	if cfg.Redis.PoolSize, err = intEnv("REDIS_POOL_SIZE", cfg.Redis.PoolSize); err != nil {
		return Server{}, err
	}
	cfg.TracingEnabled = os.Getenv("OTEL_TRACING_ENABLED") == "true"

	if err := cfg.validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (s Server) validate() error {
	switch s.Store {
	case StoreMemory:
	case StorePostgres:
		if s.Database.URL == "" {
			return fmt.Errorf("CMS_STORE=postgres requires DATABASE_URL")
		}
	case StoreRedis:
		if s.Redis.URL == "" {
			return fmt.Errorf("CMS_STORE=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown CMS_STORE %q", s.Store)
	}
	if s.Consent.MaxLifetimeDays < 0 {
		return fmt.Errorf("CMS_MAX_CONSENT_LIFETIME_DAYS must not be negative")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}
