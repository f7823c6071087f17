package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all environment configuration for the pipeline
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	Env  string // development, staging, production
	Port string // scheduler status server

	// PipelineFile points at the YAML pipeline definition
	PipelineFile string

	Database        DatabaseConfig
	Redis           RedisConfig
	ForecastService ForecastServiceConfig
	ObjectStore     ObjectStoreConfig
	Notify          NotifyConfig
	Metrics         MetricsConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds warehouse (PostgreSQL) configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// ForecastServiceConfig points at the hosted forecasting API
type ForecastServiceConfig struct {
	Mode      string // http, simulate
	BaseURL   string
	Token     string
	Timeout   time.Duration
	RateLimit int // requests per second
}

// ObjectStoreConfig holds the object store root
type ObjectStoreConfig struct {
	Root   string
	Bucket string
}

// NotifyConfig holds the notification webhook
type NotifyConfig struct {
	WebhookURL string
	Enabled    bool
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool
	PushURL string // pushgateway for batch runs, empty = no push
}

// Simulated reports whether the forecasting service runs in-process
func (c *Config) Simulated() bool {
	return c.ForecastService.Mode == "simulate"
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Env:          getEnv("ENV", "development"),
		Port:         getEnv("PORT", "8090"),
		PipelineFile: getEnv("PIPELINE_CONFIG", "config/pipeline.yaml"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		ForecastService: ForecastServiceConfig{
			Mode:      getEnv("FORECAST_MODE", "http"),
			BaseURL:   getEnv("FORECAST_API_URL", ""),
			Token:     getEnv("FORECAST_API_TOKEN", ""),
			Timeout:   getEnvAsDuration("FORECAST_API_TIMEOUT", "30s"),
			RateLimit: getEnvAsInt("FORECAST_API_RATE_LIMIT", 5),
		},

		ObjectStore: ObjectStoreConfig{
			Root:   getEnv("OBJECT_STORE_ROOT", "./data"),
			Bucket: getEnv("OBJECT_STORE_BUCKET", "demandcast"),
		},

		Notify: NotifyConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
			Enabled:    getEnvAsBool("NOTIFY_ENABLED", true),
		},

		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", true),
			PushURL: getEnv("METRICS_PUSH_URL", ""),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.ForecastService.Mode {
	case "http":
		if c.ForecastService.BaseURL == "" {
			return fmt.Errorf("FORECAST_API_URL is required when FORECAST_MODE=http")
		}
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case "simulate":
		// 시뮬레이션 모드는 인메모리 warehouse 사용
	default:
		return fmt.Errorf("FORECAST_MODE must be one of: http, simulate")
	}

	if c.ForecastService.RateLimit <= 0 {
		return fmt.Errorf("FORECAST_API_RATE_LIMIT must be > 0")
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
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

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
