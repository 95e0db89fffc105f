package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// All environment variables are read through this package only.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Downstream collaborators
	Services ServicesConfig

	// Cycle defaults
	Cycle CycleConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
	MetricsPort    string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// ServicesConfig holds base URLs and timeouts for every downstream
// collaborator consumed through the service caller.
type ServicesConfig struct {
	Scan      ServiceEndpoint
	News      ServiceEndpoint
	Pattern   ServiceEndpoint
	Technical ServiceEndpoint
	Risk      ServiceEndpoint
	Execution ServiceEndpoint

	// FillStreamURL is the execution venue's websocket endpoint for
	// order fill notifications. Empty disables the stream.
	FillStreamURL string

	// RateLimit caps outbound calls per collaborator per window.
	RateLimit       int
	RateLimitWindow time.Duration
}

// ServiceEndpoint describes one collaborator endpoint.
type ServiceEndpoint struct {
	BaseURL string
	Timeout time.Duration
}

// CycleConfig holds defaults for new trading cycles.
type CycleConfig struct {
	ScanFrequency    time.Duration
	MinScanFrequency time.Duration
	MaxScanFrequency time.Duration
	MaxPositions     int
	RiskLevel        float64 // fraction of equity risked per position
	TotalRiskBudget  float64
	ConfidenceFloor  float64

	// Funnel stage caps: universe -> tracked -> catalyst -> final
	UniverseSize int
	TrackedSize  int
	CatalystSize int
	FinalSize    int
}

// Load reads configuration from environment variables.
// This is the only function that calls os.Getenv().
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom behaves like Load but reads the named env file instead of
// probing the default locations when envFile is non-empty.
func LoadFrom(envFile string) (*Config, error) {
	loadEnvFile(envFile)

	cfg := &Config{
		Port: getEnv("PORT", "8090"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},

		Services: ServicesConfig{
			Scan: ServiceEndpoint{
				BaseURL: getEnv("SCAN_SERVICE_URL", "http://localhost:5001"),
				Timeout: getEnvAsDuration("SCAN_SERVICE_TIMEOUT", "10s"),
			},
			News: ServiceEndpoint{
				BaseURL: getEnv("NEWS_SERVICE_URL", "http://localhost:5008"),
				Timeout: getEnvAsDuration("NEWS_SERVICE_TIMEOUT", "15s"),
			},
			Pattern: ServiceEndpoint{
				BaseURL: getEnv("PATTERN_SERVICE_URL", "http://localhost:5002"),
				Timeout: getEnvAsDuration("PATTERN_SERVICE_TIMEOUT", "10s"),
			},
			Technical: ServiceEndpoint{
				BaseURL: getEnv("TECHNICAL_SERVICE_URL", "http://localhost:5003"),
				Timeout: getEnvAsDuration("TECHNICAL_SERVICE_TIMEOUT", "10s"),
			},
			Risk: ServiceEndpoint{
				BaseURL: getEnv("RISK_SERVICE_URL", "http://localhost:5004"),
				Timeout: getEnvAsDuration("RISK_SERVICE_TIMEOUT", "5s"),
			},
			Execution: ServiceEndpoint{
				BaseURL: getEnv("EXECUTION_SERVICE_URL", "http://localhost:5005"),
				Timeout: getEnvAsDuration("EXECUTION_SERVICE_TIMEOUT", "10s"),
			},
			FillStreamURL:   getEnv("EXECUTION_FILL_STREAM_URL", ""),
			RateLimit:       getEnvAsInt("SERVICE_RATE_LIMIT", 60),
			RateLimitWindow: getEnvAsDuration("SERVICE_RATE_LIMIT_WINDOW", "1m"),
		},

		Cycle: CycleConfig{
			ScanFrequency:    getEnvAsDuration("CYCLE_SCAN_FREQUENCY", "5m"),
			MinScanFrequency: getEnvAsDuration("CYCLE_MIN_SCAN_FREQUENCY", "30s"),
			MaxScanFrequency: getEnvAsDuration("CYCLE_MAX_SCAN_FREQUENCY", "1h"),
			MaxPositions:     getEnvAsInt("CYCLE_MAX_POSITIONS", 5),
			RiskLevel:        getEnvAsFloat("CYCLE_RISK_LEVEL", 0.02),
			TotalRiskBudget:  getEnvAsFloat("CYCLE_TOTAL_RISK_BUDGET", 10000),
			ConfidenceFloor:  getEnvAsFloat("CYCLE_CONFIDENCE_FLOOR", 60),
			UniverseSize:     getEnvAsInt("FUNNEL_UNIVERSE_SIZE", 200),
			TrackedSize:      getEnvAsInt("FUNNEL_TRACKED_SIZE", 100),
			CatalystSize:     getEnvAsInt("FUNNEL_CATALYST_SIZE", 50),
			FinalSize:        getEnvAsInt("FUNNEL_FINAL_SIZE", 5),
		},

		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		MetricsPort:    getEnv("METRICS_PORT", "9090"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set.
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Cycle.MinScanFrequency <= 0 || c.Cycle.MaxScanFrequency < c.Cycle.MinScanFrequency {
		return fmt.Errorf("invalid scan frequency bounds")
	}

	if c.Cycle.FinalSize > c.Cycle.CatalystSize ||
		c.Cycle.CatalystSize > c.Cycle.TrackedSize ||
		c.Cycle.TrackedSize > c.Cycle.UniverseSize {
		return fmt.Errorf("funnel stage caps must be non-increasing")
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations. A non-empty
// envFile overrides the probing and is loaded directly.
func loadEnvFile(envFile string) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
		return
	}

	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
			filepath.Join(exeDir, "..", "..", ".env"),
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
