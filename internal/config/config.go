package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	ServicePort int
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	Pipeline    PipelineConfig
	Validation  ValidationConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL string
}

// RabbitMQConfig holds RabbitMQ connection and queue settings
type RabbitMQConfig struct {
	URL              string
	IngestExchange   string
	IngestQueue      string
	IngestRoutingKey string
	AlertExchange    string
	AlertRoutingKey  string
	DLQQueue         string
	PrefetchCount    int
}

// PipelineConfig holds derivation pipeline settings
type PipelineConfig struct {
	TickInterval time.Duration
	BatchSize    int
	RunningRPM   float64
}

// ValidationConfig holds ingest validation settings
type ValidationConfig struct {
	TimestampToleranceMinutes int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "equipment-analytics-worker"),
		ServicePort: getEnvAsInt("SERVICE_PORT", 8081),
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		RabbitMQ: RabbitMQConfig{
			URL:              getEnv("RABBITMQ_URL", ""),
			IngestExchange:   getEnv("RABBITMQ_INGEST_EXCHANGE", "equipment-analytics.ingest.exchange"),
			IngestQueue:      getEnv("RABBITMQ_INGEST_QUEUE", "equipment-analytics.ingest.queue"),
			IngestRoutingKey: getEnv("RABBITMQ_INGEST_ROUTING_KEY", "machine.telemetry.raw"),
			AlertExchange:    getEnv("RABBITMQ_ALERT_EXCHANGE", "equipment-analytics.alert.events.exchange"),
			AlertRoutingKey:  getEnv("RABBITMQ_ALERT_ROUTING_KEY", "machine.alert"),
			DLQQueue:         getEnv("RABBITMQ_DLQ_QUEUE", "equipment-analytics.ingest.dlq"),
			PrefetchCount:    getEnvAsInt("RABBITMQ_PREFETCH", 10),
		},
		Pipeline: PipelineConfig{
			TickInterval: getEnvAsDuration("PIPELINE_TICK_INTERVAL", 10*time.Second),
			BatchSize:    getEnvAsInt("PIPELINE_BATCH_SIZE", 300),
			RunningRPM:   getEnvAsFloat("STATUS_RUNNING_RPM", 200),
		},
		Validation: ValidationConfig{
			TimestampToleranceMinutes: getEnvAsInt("VALIDATION_TIMESTAMP_TOLERANCE_MINUTES", 10080),
		},
	}

	// Validate required fields
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set in environment variables")
	}
	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required but not set in environment variables")
	}
	if cfg.Pipeline.BatchSize <= 0 {
		return nil, fmt.Errorf("PIPELINE_BATCH_SIZE must be positive, got %d", cfg.Pipeline.BatchSize)
	}
	if cfg.Pipeline.TickInterval <= 0 {
		return nil, fmt.Errorf("PIPELINE_TICK_INTERVAL must be positive, got %s", cfg.Pipeline.TickInterval)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
