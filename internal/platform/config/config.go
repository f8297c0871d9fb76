package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-level configuration. Everything comes from the
// environment so main stays lean.
type Config struct {
	Addr       string
	AdminToken string
	LogLevel   string

	// PostgresDSN selects the durable action log; empty keeps the log in
	// memory (dev and tests).
	PostgresDSN string
	// RedisURL enables the resolve cache; empty disables it.
	RedisURL string
	CacheTTL time.Duration

	// KafkaBrokers enables settlement audit events; empty publishes nowhere.
	KafkaBrokers []string
	KafkaTopic   string

	SettleInterval   time.Duration
	RetryWait        time.Duration
	BatchLimit       int
	PendingThreshold int

	// AdminKey and Premium seed the genesis scalar fields of a fresh
	// deployment.
	AdminKey string
	Premium  uint64
}

// FromEnv builds the config from environment variables, applying defaults.
// Invalid values are fatal: a daemon running with a misread retry interval is
// worse than one that refuses to start.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:        getenv("ZKNS_ADDR", ":8080"),
		AdminToken:  os.Getenv("ZKNS_ADMIN_TOKEN"),
		LogLevel:    getenv("ZKNS_LOG_LEVEL", "info"),
		PostgresDSN: os.Getenv("ZKNS_POSTGRES_DSN"),
		RedisURL:    os.Getenv("ZKNS_REDIS_URL"),
		KafkaTopic:  getenv("ZKNS_KAFKA_TOPIC", "zkns.settlement"),
		AdminKey:    getenv("ZKNS_ADMIN_KEY", "B62qDevAdmin"),
	}

	if brokers := os.Getenv("ZKNS_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	var err error
	if cfg.CacheTTL, err = getduration("ZKNS_CACHE_TTL", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.SettleInterval, err = getduration("ZKNS_SETTLE_INTERVAL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.RetryWait, err = getduration("ZKNS_RETRY_WAIT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.BatchLimit, err = getint("ZKNS_BATCH_LIMIT", 32); err != nil {
		return Config{}, err
	}
	if cfg.PendingThreshold, err = getint("ZKNS_PENDING_THRESHOLD", 8); err != nil {
		return Config{}, err
	}
	premium, err := getint("ZKNS_PREMIUM", 10)
	if err != nil {
		return Config{}, err
	}
	cfg.Premium = uint64(premium)

	if cfg.BatchLimit <= 0 {
		return Config{}, fmt.Errorf("ZKNS_BATCH_LIMIT must be positive, got %d", cfg.BatchLimit)
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getint(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
