package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr     string
	LogLevel string

	AWSRegion         string
	CatalogSecretName string

	// Usage telemetry. When UsageQueueURL is set, records go to SQS; else
	// when DatabaseURL is set, they are written to Postgres; else they are
	// kept in memory.
	UsageQueueURL  string
	DatabaseURL    string
	UsageQueueSize int

	// Conversation history. Empty RedisURL selects the in-memory store.
	RedisURL string

	AlertTopicARN string
	OTLPEndpoint  string

	// Graceful shutdown
	ShutdownTimeout time.Duration
	DrainTimeout    time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Addr:              getEnv("ADDR", ":8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		AWSRegion:         getEnv("AWS_REGION", "us-east-1"),
		CatalogSecretName: getEnv("CATALOG_SECRET_NAME", ""),
		UsageQueueURL:     getEnv("USAGE_QUEUE_URL", ""),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		UsageQueueSize:    getIntEnv("USAGE_QUEUE_SIZE", 0),
		RedisURL:          getEnv("REDIS_URL", ""),
		AlertTopicARN:     getEnv("ALERT_TOPIC_ARN", ""),
		OTLPEndpoint:      getEnv("OTLP_ENDPOINT", ""),
		ShutdownTimeout:   getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		DrainTimeout:      getDurationEnv("DRAIN_TIMEOUT", 15*time.Second),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
