package config

import (
	"os"
	"runtime"
	"strconv"
	"time"
)

// Config captures process-level configuration so main stays lean.
type Config struct {
	Addr          string
	SchemaVersion string
	JWTSigningKey string

	// Pipeline tuning.
	Shards       int
	BatchSize    int
	PhaseRetries int
	RetryBackoff time.Duration

	// Sinks. Empty values disable the optional backends.
	PostgresDSN string
	Redis       RedisConfig
	Kafka       KafkaConfig
}

// RedisConfig holds connection settings for the optional run-status cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	StatusTTL    time.Duration
}

// KafkaConfig holds settings for the optional run-event publisher.
type KafkaConfig struct {
	Brokers string
	Topic   string
}

// FromEnv builds a Config from environment variables with development
// defaults.
func FromEnv() Config {
	return Config{
		Addr:          envOr("REPVAL_ADDR", ":8080"),
		SchemaVersion: envOr("REPVAL_SCHEMA_VERSION", "emir-refit-1"),
		// Use a default for development - should be overridden in production
		JWTSigningKey: envOr("REPVAL_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Shards:        envInt("REPVAL_SHARDS", runtime.NumCPU()),
		BatchSize:     envInt("REPVAL_BATCH_SIZE", 1000),
		PhaseRetries:  envInt("REPVAL_PHASE_RETRIES", 3),
		RetryBackoff:  envDuration("REPVAL_RETRY_BACKOFF", 500*time.Millisecond),
		PostgresDSN:   os.Getenv("REPVAL_POSTGRES_DSN"),
		Redis: RedisConfig{
			URL:          os.Getenv("REPVAL_REDIS_URL"),
			PoolSize:     envInt("REPVAL_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REPVAL_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("REPVAL_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REPVAL_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REPVAL_REDIS_WRITE_TIMEOUT", 3*time.Second),
			StatusTTL:    envDuration("REPVAL_REDIS_STATUS_TTL", 24*time.Hour),
		},
		Kafka: KafkaConfig{
			Brokers: os.Getenv("REPVAL_KAFKA_BROKERS"),
			Topic:   envOr("REPVAL_KAFKA_TOPIC", "repval.run.events"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
