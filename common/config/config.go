package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service    ServiceConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Quarantine QuarantineConfig
	Scanner    ScannerConfig
	Storage    StorageConfig
	Cleanup    CleanupConfig
	RateLimit  RateLimitConfig
	Cache      CacheConfig
	Telemetry  TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string

	// Static bearer token for the API. Empty disables auth (development).
	AuthToken string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// QuarantineConfig holds staging-area settings
type QuarantineConfig struct {
	Root        string
	MaxAge      time.Duration
	MaxFileSize int64
}

// ScannerConfig holds antivirus and heuristic scan settings
type ScannerConfig struct {
	Binary            string
	Timeout           time.Duration
	HeuristicScanSize int
	MaxPixels         int64
	MaxDimension      int
	MaxDecompression  float64
	BreakerThreshold  int64
	BreakerWindow     time.Duration
	AllowedExtensions []string
}

// StorageConfig holds media disk settings
type StorageConfig struct {
	Disks       map[string]string // disk name -> filesystem root
	DefaultDisk string
}

// CleanupConfig holds deferred-cleanup settings
type CleanupConfig struct {
	PayloadTTL    time.Duration
	SweepInterval time.Duration
	SweepBatch    int
	MaxAttempts   int
	BaseBackoff   time.Duration
}

// RateLimitConfig holds upload rate-limit settings. A limit of 0 disables
// the corresponding check.
type RateLimitConfig struct {
	GlobalLimit   int
	OwnerLimit    int
	WindowSeconds int
}

// CacheConfig holds artifact metadata cache settings
type CacheConfig struct {
	Size int
	TTL  time.Duration
}

// TelemetryConfig holds pprof and metrics listener settings
type TelemetryConfig struct {
	PprofPort   int
	MetricsPort int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"), // Default to text for development
			AuthToken:   getEnv("AUTH_TOKEN", ""),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "mediavault"),
			User:        getEnv("POSTGRES_USER", "mediavault"),
			Password:    getEnv("POSTGRES_PASSWORD", "mediavault"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Quarantine: QuarantineConfig{
			Root:        getEnv("QUARANTINE_ROOT", "/var/lib/mediavault/quarantine"),
			MaxAge:      getEnvDuration("QUARANTINE_MAX_AGE", 24*time.Hour),
			MaxFileSize: getEnvInt64("QUARANTINE_MAX_FILE_SIZE", 32<<20),
		},
		Scanner: ScannerConfig{
			Binary:            getEnv("SCANNER_BINARY", "clamscan"),
			Timeout:           getEnvDuration("SCANNER_TIMEOUT", 30*time.Second),
			HeuristicScanSize: getEnvInt("SCANNER_HEURISTIC_BYTES", 1<<20),
			MaxPixels:         getEnvInt64("SCANNER_MAX_PIXELS", 50_000_000),
			MaxDimension:      getEnvInt("SCANNER_MAX_DIMENSION", 16_000),
			MaxDecompression:  getEnvFloat("SCANNER_MAX_DECOMPRESSION", 200.0),
			BreakerThreshold:  getEnvInt64("SCANNER_BREAKER_THRESHOLD", 5),
			BreakerWindow:     getEnvDuration("SCANNER_BREAKER_WINDOW", 10*time.Minute),
			AllowedExtensions: getEnvSlice("SCANNER_ALLOWED_EXTENSIONS", []string{"jpg", "jpeg", "png", "gif", "webp"}),
		},
		Storage: StorageConfig{
			Disks: map[string]string{
				"media": getEnv("STORAGE_MEDIA_ROOT", "/var/lib/mediavault/media"),
			},
			DefaultDisk: getEnv("STORAGE_DEFAULT_DISK", "media"),
		},
		Cleanup: CleanupConfig{
			PayloadTTL:    getEnvDuration("CLEANUP_PAYLOAD_TTL", 48*time.Hour),
			SweepInterval: getEnvDuration("CLEANUP_SWEEP_INTERVAL", 15*time.Minute),
			SweepBatch:    getEnvInt("CLEANUP_SWEEP_BATCH", 100),
			MaxAttempts:   getEnvInt("CLEANUP_MAX_ATTEMPTS", 5),
			BaseBackoff:   getEnvDuration("CLEANUP_BASE_BACKOFF", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			GlobalLimit:   getEnvInt("RATE_LIMIT_GLOBAL", 600),
			OwnerLimit:    getEnvInt("RATE_LIMIT_OWNER", 30),
			WindowSeconds: getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		},
		Cache: CacheConfig{
			Size: getEnvInt("CACHE_SIZE", 4096),
			TTL:  getEnvDuration("CACHE_TTL", 5*time.Minute),
		},
		Telemetry: TelemetryConfig{
			PprofPort:   getEnvInt("PPROF_PORT", 6060),
			MetricsPort: getEnvInt("METRICS_PORT", 9090),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Quarantine.Root == "" {
		return fmt.Errorf("quarantine root is required")
	}

	if c.Scanner.BreakerThreshold < 1 {
		return fmt.Errorf("breaker threshold must be >= 1")
	}

	if _, ok := c.Storage.Disks[c.Storage.DefaultDisk]; !ok {
		return fmt.Errorf("default disk %q is not configured", c.Storage.DefaultDisk)
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns the Redis host:port
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
