package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything main needs to wire the process. Values come
// from the environment so deployments stay twelve-factor.
type Config struct {
	Addr            string
	DatabaseURL     string
	BlobRoot        string
	JWTSigningKey   string
	ShutdownTimeout time.Duration

	Ledger LedgerConfig
	Redis  RedisConfig
	Kafka  KafkaConfig
}

// LedgerConfig points at the anchor gateway.
type LedgerConfig struct {
	URL          string
	APIKey       string
	ExplorerBase string
	ConfirmDepth int
	ConfirmWait  time.Duration
}

// RedisConfig configures the shared anchor-state store. An empty URL means
// redis is not deployed and the in-memory state store is used.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit mirror. Empty brokers disable mirroring.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds the config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Addr:            envOr("IRIS_ADDR", ":8080"),
		DatabaseURL:     os.Getenv("IRIS_DATABASE_URL"),
		BlobRoot:        envOr("IRIS_BLOB_ROOT", "./data/blobs"),
		JWTSigningKey:   envOr("IRIS_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		ShutdownTimeout: envDuration("IRIS_SHUTDOWN_TIMEOUT", 10*time.Second),
		Ledger: LedgerConfig{
			URL:          os.Getenv("IRIS_LEDGER_URL"),
			APIKey:       os.Getenv("IRIS_LEDGER_API_KEY"),
			ExplorerBase: envOr("IRIS_EXPLORER_BASE", "https://sepolia.etherscan.io"),
			ConfirmDepth: envInt("IRIS_CONFIRM_DEPTH", 1),
			ConfirmWait:  envDuration("IRIS_CONFIRM_WAIT", 2*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("IRIS_REDIS_URL"),
			PoolSize:     envInt("IRIS_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("IRIS_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("IRIS_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("IRIS_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("IRIS_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("IRIS_KAFKA_BROKERS")),
			Topic:   envOr("IRIS_KAFKA_AUDIT_TOPIC", "iris.audit"),
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
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
