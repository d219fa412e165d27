package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration (author lookup, read-only)
	Database DatabaseConfig

	// Redis configuration (cluster fan-out)
	Redis RedisConfig

	// JWT configuration
	JWT JWTConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// WebSocket configuration
	WebSocket WebSocketConfig

	// Presence / connection lifecycle configuration
	Presence PresenceConfig

	// Event dispatch configuration
	Dispatch DispatchConfig

	// Logging configuration
	Logging LoggingConfig

	// Application metadata
	App AppConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds the shared pub/sub medium configuration. Leaving URL
// empty runs the service in single-instance mode with the in-memory broker.
type RedisConfig struct {
	URL            string
	Channel        string
	ReconnectMin   time.Duration
	ReconnectMax   time.Duration
	PublishTimeout time.Duration
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret   string
	TokenTTL time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	BurstSize         int
	ConnectRPS        float64 // Per-identity websocket connection attempts
	ConnectBurst      int
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	AllowedOrigins  []string
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	PingInterval    time.Duration
	PongWait        time.Duration
}

// PresenceConfig holds connection lifecycle thresholds
type PresenceConfig struct {
	IdleAfter           time.Duration // Active -> Idle after no activity
	InactivityThreshold time.Duration // Idle -> force-disconnect
	SweepInterval       time.Duration // How often the gateway sweeps
	OfflineRetention    time.Duration // Purge sessions offline this long
	RoomIdleWindow      time.Duration // Delete rooms empty this long
	MaxConnsPerUser     int           // 0 disables the cap
}

// DispatchConfig holds event dispatcher tuning. The debounce and dedup
// windows are design targets, not verified production values; treat them
// as starting points.
type DispatchConfig struct {
	DedupWindow      time.Duration
	DebounceWindow   time.Duration
	AuthorCacheTTL   time.Duration
	NegativeCacheTTL time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string
	Version     string
	Environment string
	InstanceID  string // Unique per process; filters self-origin cluster messages
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", ":8080"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getDurationOrDefault("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getIntOrDefault("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntOrDefault("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getDurationOrDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:            os.Getenv("REDIS_URL"),
			Channel:        getEnvOrDefault("REDIS_FANOUT_CHANNEL", "realtime:events"),
			ReconnectMin:   getDurationOrDefault("REDIS_RECONNECT_MIN", 1*time.Second),
			ReconnectMax:   getDurationOrDefault("REDIS_RECONNECT_MAX", 30*time.Second),
			PublishTimeout: getDurationOrDefault("REDIS_PUBLISH_TIMEOUT", 2*time.Second),
		},
		JWT: JWTConfig{
			Secret:   os.Getenv("JWT_SECRET"),
			TokenTTL: getDurationOrDefault("JWT_TOKEN_TTL", 1*time.Hour),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getBoolOrDefault("RATE_LIMIT_ENABLED", true),
			RequestsPerSecond: getFloatOrDefault("RATE_LIMIT_RPS", 20),
			BurstSize:         getIntOrDefault("RATE_LIMIT_BURST", 40),
			ConnectRPS:        getFloatOrDefault("RATE_LIMIT_CONNECT_RPS", 1),
			ConnectBurst:      getIntOrDefault("RATE_LIMIT_CONNECT_BURST", 5),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins:  getStringSliceOrDefault("WS_ALLOWED_ORIGINS", []string{}),
			ReadBufferSize:  getIntOrDefault("WS_READ_BUFFER_SIZE", 1024),
			WriteBufferSize: getIntOrDefault("WS_WRITE_BUFFER_SIZE", 1024),
			SendBufferSize:  getIntOrDefault("WS_SEND_BUFFER_SIZE", 256),
			PingInterval:    getDurationOrDefault("WS_PING_INTERVAL", 54*time.Second),
			PongWait:        getDurationOrDefault("WS_PONG_WAIT", 60*time.Second),
		},
		Presence: PresenceConfig{
			IdleAfter:           getDurationOrDefault("PRESENCE_IDLE_AFTER", 2*time.Minute),
			InactivityThreshold: getDurationOrDefault("PRESENCE_INACTIVITY_THRESHOLD", 5*time.Minute),
			SweepInterval:       getDurationOrDefault("PRESENCE_SWEEP_INTERVAL", 30*time.Second),
			OfflineRetention:    getDurationOrDefault("PRESENCE_OFFLINE_RETENTION", 24*time.Hour),
			RoomIdleWindow:      getDurationOrDefault("PRESENCE_ROOM_IDLE_WINDOW", 2*time.Minute),
			MaxConnsPerUser:     getIntOrDefault("PRESENCE_MAX_CONNS_PER_USER", 8),
		},
		Dispatch: DispatchConfig{
			DedupWindow:      getDurationOrDefault("DISPATCH_DEDUP_WINDOW", 2*time.Second),
			DebounceWindow:   getDurationOrDefault("DISPATCH_DEBOUNCE_WINDOW", 1*time.Second),
			AuthorCacheTTL:   getDurationOrDefault("DISPATCH_AUTHOR_CACHE_TTL", 5*time.Minute),
			NegativeCacheTTL: getDurationOrDefault("DISPATCH_NEGATIVE_CACHE_TTL", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		App: AppConfig{
			Name:        getEnvOrDefault("APP_NAME", "realtime-backend"),
			Version:     getEnvOrDefault("APP_VERSION", "dev"),
			Environment: getEnvOrDefault("APP_ENV", "development"),
			InstanceID:  getEnvOrDefault("APP_INSTANCE_ID", uuid.NewString()),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []string

	// Required fields
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		errs = append(errs, "JWT_SECRET is required")
	}

	// Security validations
	if c.App.Environment == "production" {
		if len(c.JWT.Secret) < 32 {
			errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
		}

		if len(c.WebSocket.AllowedOrigins) == 0 {
			errs = append(errs, "WS_ALLOWED_ORIGINS must be set in production")
		}
	}

	// Logical validations
	if c.Presence.IdleAfter >= c.Presence.InactivityThreshold {
		errs = append(errs, "PRESENCE_IDLE_AFTER must be shorter than PRESENCE_INACTIVITY_THRESHOLD")
	}

	if c.Dispatch.DebounceWindow <= 0 {
		errs = append(errs, "DISPATCH_DEBOUNCE_WINDOW must be positive")
	}

	if c.WebSocket.PingInterval >= c.WebSocket.PongWait {
		errs = append(errs, "WS_PING_INTERVAL must be shorter than WS_PONG_WAIT")
	}

	if len(errs) > 0 {
		return errors.New("configuration errors:\n  - " + strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Helper functions

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// String returns a redacted string representation of the config (safe for logging)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Server: %s, DB: %s, Redis: %s, JWT: [REDACTED], RateLimit: %v, Environment: %s}",
		c.Server.Port,
		redactURL(c.Database.URL),
		redactURL(c.Redis.URL),
		c.RateLimit.Enabled,
		c.App.Environment,
	)
}

// redactURL redacts credentials embedded in a connection URL
func redactURL(url string) string {
	if url == "" {
		return ""
	}
	if idx := strings.Index(url, "@"); idx > 0 {
		return "[REDACTED]" + url[idx:]
	}
	return "[REDACTED]"
}
