// Package config centralises configuration parsing for the pulselog service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration values for the pulselog binaries.
type Config struct {
	HTTPAddress          string
	MetricsAddress       string
	PostgresURL          string // Empty selects the in-memory repository (local dev).
	KafkaBrokers         []string
	SchemaRegistryURL    string
	ConsumerTopics       []string
	ConsumerGroupID      string
	ProjectionTimezone   string // IANA zone used to bucket days in the projection.
	CacheInvalidationURL string // Empty disables badge cache invalidation.
	OutboxPollInterval   time.Duration
	OutboxBatchSize      int
	DLQPollInterval      time.Duration // Interval between DLQ polling iterations.
	DLQMaxRetries        int           // Maximum number of DLQ retry attempts before quarantine.
	DLQBaseDelay         time.Duration // Base delay used for exponential backoff.
}

// Load reads environment variables into Config, applying sensible defaults for local dev.
func Load() Config {
	cfg := Config{
		HTTPAddress:          getEnv("HTTP_ADDRESS", ":8080"),
		MetricsAddress:       getEnv("METRICS_ADDRESS", ":9091"),
		PostgresURL:          getEnv("POSTGRES_URL", ""),
		SchemaRegistryURL:    getEnv("SCHEMA_REGISTRY_URL", "http://schema-registry:8081"),
		ConsumerGroupID:      getEnv("CONSUMER_GROUP_ID", "pulselog-projection"),
		ProjectionTimezone:   getEnv("PROJECTION_TIMEZONE", "UTC"),
		CacheInvalidationURL: getEnv("CACHE_INVALIDATION_URL", ""),
		OutboxPollInterval:   getDurationEnv("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:      getIntEnv("OUTBOX_BATCH_SIZE", 25),
		DLQPollInterval:      getDurationEnv("DLQ_POLL_INTERVAL", 30*time.Second),
		DLQMaxRetries:        getIntEnv("DLQ_MAX_RETRIES", 5),
		DLQBaseDelay:         getDurationEnv("DLQ_BASE_DELAY", time.Minute),
	}

	cfg.KafkaBrokers = splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092"))
	cfg.ConsumerTopics = splitAndTrim(getEnv("CONSUMER_TOPICS", "observation_events,observation_state_changed"))
	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
