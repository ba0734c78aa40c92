package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Worker   WorkerConfig
	Storage  StorageConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
}

// OCRConfig holds configuration for the external OCR service.
type OCRConfig struct {
	BaseURL  string
	APIKey   string // query-string credential
	APIToken string // bearer credential
	Timeout  time.Duration
}

// LLMConfig holds configuration for the external parsing model.
type LLMConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// WorkerConfig holds the async processing queue settings.
type WorkerConfig struct {
	Workers      int
	QueueSize    int
	JobTimeout   time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
}

// StorageConfig holds the file storage layout and receipt locale defaults.
type StorageConfig struct {
	Root     string // root of the stored receipt files
	InboxDir string // watched drop directory; empty disables the watcher
	Timezone string // IANA zone attached to parsed receipt dates
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
		OCR: OCRConfig{
			BaseURL:  getEnv("OCR_BASE_URL", "http://ocr-next-api"),
			APIKey:   getEnv("OCR_API_KEY", ""),
			APIToken: getEnv("OCR_API_TOKEN", ""),
			Timeout:  getEnvAsDuration("OCR_TIMEOUT", 2*time.Minute),
		},
		LLM: LLMConfig{
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:       getEnv("OPENAI_MODEL", "gpt-4"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.1),
			MaxTokens:   getEnvAsInt("OPENAI_MAX_TOKENS", 2000),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 2*time.Minute),
		},
		Worker: WorkerConfig{
			Workers:      getEnvAsInt("WORKER_COUNT", 4),
			QueueSize:    getEnvAsInt("WORKER_QUEUE_SIZE", 256),
			JobTimeout:   getEnvAsDuration("WORKER_JOB_TIMEOUT", 5*time.Minute),
			MaxAttempts:  getEnvAsInt("WORKER_MAX_ATTEMPTS", 3),
			RetryBackoff: getEnvAsDuration("WORKER_RETRY_BACKOFF", 2*time.Second),
		},
		Storage: StorageConfig{
			Root:     getEnv("STORAGE_ROOT", "./storage"),
			InboxDir: getEnv("INBOX_DIR", ""),
			Timezone: getEnv("RECEIPT_TIMEZONE", "Europe/Berlin"),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks the loaded configuration for required values.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if c.OCR.APIKey == "" && c.OCR.APIToken == "" {
		return NewAppError("CONFIG_ERROR", "OCR_API_KEY or OCR_API_TOKEN is required", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "GRPC_ADDR is required", ErrInvalidInput)
	}
	return nil
}
