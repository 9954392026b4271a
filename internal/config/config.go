// internal/config/config.go

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultTokenSecret = "your-secret-key"

// Store drivers
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Store       StoreConfig
	Database    DatabaseConfig
	NATS        NATSConfig
	Redis       RedisConfig
	Blob        BlobConfig
	Identity    IdentityConfig
	Messaging   MessagingConfig
	Sync        SyncConfig
	Expiry      ExpiryConfig
	Log         LogConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	CorsOrigins     []string
}

// StoreConfig selects the document store and device-local store backends
type StoreConfig struct {
	Driver      string
	LocalDriver string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	SSLMode      string
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL            string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
}

// RedisConfig holds the device-local store's Redis connection
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// BlobConfig holds object storage configuration. An empty endpoint keeps
// uploads in memory.
type BlobConfig struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	PublicBaseURL string
}

// IdentityConfig holds identity service configuration
type IdentityConfig struct {
	TokenSecret       string
	TokenExpiry       time.Duration
	ReauthWindow      time.Duration
	MinPasswordLength int
}

// MessagingConfig holds chat send limits
type MessagingConfig struct {
	RatePerSecond    float64
	Burst            int
	MaxMessageLength int
}

// SyncConfig holds live view configuration
type SyncConfig struct {
	ResolverFanOut int
}

// ExpiryConfig holds the post expiry job configuration
type ExpiryConfig struct {
	Enabled      bool
	Interval     time.Duration
	Retention    time.Duration
	BatchSize    int
	SweepTimeout time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level   string
	NoColor bool
}

// Addr returns the server's listen address
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ConnString returns the Postgres connection URL
func (c DatabaseConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// Load loads configuration from environment variables
func Load() (Config, error) {
	config := Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CorsOrigins:     getEnvAsSlice("SERVER_CORS_ORIGINS", []string{"*"}),
		},
		Store: StoreConfig{
			Driver:      getEnv("STORE_DRIVER", StoreMemory),
			LocalDriver: getEnv("LOCAL_STORE_DRIVER", StoreMemory),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Database:     getEnv("DB_NAME", "wimbli"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 5*time.Minute),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
		},
		NATS: NATSConfig{
			URL:            getEnv("NATS_URL", "nats://localhost:4222"),
			MaxReconnects:  getEnvAsInt("NATS_MAX_RECONNECTS", 10),
			ReconnectWait:  getEnvAsDuration("NATS_RECONNECT_WAIT", 1*time.Second),
			ConnectTimeout: getEnvAsDuration("NATS_CONNECT_TIMEOUT", 2*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Blob: BlobConfig{
			Endpoint:      getEnv("BLOB_ENDPOINT", ""),
			Region:        getEnv("BLOB_REGION", "us-east-1"),
			Bucket:        getEnv("BLOB_BUCKET", "wimbli"),
			AccessKey:     getEnv("BLOB_ACCESS_KEY", ""),
			SecretKey:     getEnv("BLOB_SECRET_KEY", ""),
			UseSSL:        getEnvAsBool("BLOB_USE_SSL", false),
			PublicBaseURL: getEnv("BLOB_PUBLIC_BASE_URL", "http://localhost:9000/wimbli"),
		},
		Identity: IdentityConfig{
			TokenSecret:       getEnv("IDENTITY_TOKEN_SECRET", defaultTokenSecret),
			TokenExpiry:       getEnvAsDuration("IDENTITY_TOKEN_EXPIRY", 24*time.Hour),
			ReauthWindow:      getEnvAsDuration("IDENTITY_REAUTH_WINDOW", 5*time.Minute),
			MinPasswordLength: getEnvAsInt("IDENTITY_MIN_PASSWORD_LENGTH", 6),
		},
		Messaging: MessagingConfig{
			RatePerSecond:    getEnvAsFloat("MESSAGING_RATE_PER_SECOND", 2),
			Burst:            getEnvAsInt("MESSAGING_BURST", 5),
			MaxMessageLength: getEnvAsInt("MESSAGING_MAX_MESSAGE_LENGTH", 1000),
		},
		Sync: SyncConfig{
			ResolverFanOut: getEnvAsInt("SYNC_RESOLVER_FAN_OUT", 8),
		},
		Expiry: ExpiryConfig{
			Enabled:      getEnvAsBool("EXPIRY_ENABLED", true),
			Interval:     getEnvAsDuration("EXPIRY_INTERVAL", 6*time.Hour),
			Retention:    getEnvAsDuration("EXPIRY_RETENTION", 24*time.Hour),
			BatchSize:    getEnvAsInt("EXPIRY_BATCH_SIZE", 500),
			SweepTimeout: getEnvAsDuration("EXPIRY_SWEEP_TIMEOUT", 5*time.Minute),
		},
		Log: LogConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			NoColor: getEnvAsBool("LOG_NO_COLOR", false),
		},
	}

	return config, validate(config)
}

// validate checks if config is valid
func validate(config Config) error {
	if config.Identity.TokenSecret == defaultTokenSecret && config.Environment != "development" {
		return fmt.Errorf("token secret must be set in non-development environments")
	}

	switch config.Store.Driver {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("unknown store driver %q", config.Store.Driver)
	}

	switch config.Store.LocalDriver {
	case StoreMemory, "redis":
	default:
		return fmt.Errorf("unknown local store driver %q", config.Store.LocalDriver)
	}

	if config.Expiry.BatchSize < 1 || config.Expiry.BatchSize > 500 {
		return fmt.Errorf("expiry batch size must be between 1 and 500, got %d", config.Expiry.BatchSize)
	}

	if config.Messaging.RatePerSecond <= 0 || config.Messaging.Burst < 1 {
		return fmt.Errorf("messaging rate limit must be positive")
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
