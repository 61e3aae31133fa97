package config

import (
	"errors"
	"os"
	"strings"
)

// Config represents the application configuration
// This struct contains all configuration parameters for the application
type Config struct {
	// AWS-specific configuration
	AWSRegion         string
	DynamoDBTableName string

	// Environment info
	Environment string

	// HTTP server
	HTTPAddr string

	// Kafka event publishing; empty disables publishing
	KafkaBrokers []string

	// Export regeneration; empty disables the filesystem sink
	ExportDir string

	// Store backend: "dynamodb" or "memory" (local development)
	StoreBackend string
}

// LoadFromEnv loads the configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{}

	cfg.StoreBackend = os.Getenv("STORE_BACKEND")
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = "dynamodb"
	}

	cfg.DynamoDBTableName = os.Getenv("DYNAMODB_TABLE_NAME")
	if cfg.DynamoDBTableName == "" && cfg.StoreBackend == "dynamodb" {
		return nil, errors.New("DYNAMODB_TABLE_NAME environment variable is required")
	}

	cfg.AWSRegion = os.Getenv("AWS_REGION")
	if cfg.AWSRegion == "" {
		cfg.AWSRegion = "ap-northeast-1"
	}

	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "dev" // Default to dev environment
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	cfg.ExportDir = os.Getenv("EXPORT_DIR")

	return cfg, nil
}

func (c *Config) IsProd() bool {
	return c.Environment == "prod"
}
