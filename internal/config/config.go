package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

var (
	validTransports = []string{"telegram", "amqp", "http"}
	validBackends   = []string{"postgres", "sqlite", "memory"}
	validLogFormats = []string{"text", "json"}
)

type Config struct {
	// HTTP Server (health, metrics, webhook)
	Port            string
	WebhookSecret   string
	RateLimit       int
	TrustedProxies  []string
	ShutdownTimeout time.Duration

	// Inbound transport
	Transport string

	// Telegram
	TelegramToken       string
	TelegramPollTimeout time.Duration

	// AMQP
	AMQPURL          string
	AMQPExchange     string
	AMQPInboundQueue string
	AMQPReplyQueue   string

	// Storage
	DataBackend  string
	DatabaseURL  string
	DBHost       string
	DBPort       string
	DBName       string
	DBUser       string
	DBPassword   string
	DBSSLMode    string
	DBMaxConns   int
	SQLiteDBPath string
	AutoMigrate  bool
	Timezone     string
	StoreTimeout time.Duration

	// Closed-day read cache; size 0 disables it
	ReadCacheSize int
	ReadCacheTTL  time.Duration

	// Worker
	Workers         int
	WorkerQueueSize int

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		Port:            getEnv("PORT", "8081"),
		WebhookSecret:   getEnv("WEBHOOK_SECRET", ""),
		RateLimit:       getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		TrustedProxies:  getEnvList("TRUSTED_PROXIES"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),

		Transport: getEnv("TRANSPORT", "telegram"),

		TelegramToken:       getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramPollTimeout: getEnvDuration("TELEGRAM_POLL_TIMEOUT", 60*time.Second),

		AMQPURL:          getEnv("AMQP_URL", ""),
		AMQPExchange:     getEnv("AMQP_EXCHANGE", "raskhody"),
		AMQPInboundQueue: getEnv("AMQP_INBOUND_QUEUE", "chat_messages"),
		AMQPReplyQueue:   getEnv("AMQP_REPLY_QUEUE", "chat_replies"),

		DataBackend:  getEnv("DATA_BACKEND", "postgres"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		DBHost:       getEnv("DB_HOST", "localhost"),
		DBPort:       getEnv("DB_PORT", "5432"),
		DBName:       getEnv("DB_NAME", "expenses_db"),
		DBUser:       getEnv("DB_USER", "postgres"),
		DBPassword:   getEnv("DB_PASSWORD", ""),
		DBSSLMode:    getEnv("DB_SSLMODE", "disable"),
		DBMaxConns:   getEnvInt("DB_MAX_CONNS", 10),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/raskhody.db"),
		AutoMigrate:  getEnvBool("AUTO_MIGRATE", true),
		Timezone:     getEnv("TIMEZONE", "UTC"),
		StoreTimeout: getEnvDuration("STORE_TIMEOUT", 5*time.Second),

		ReadCacheSize: getEnvInt("READ_CACHE_SIZE", 0),
		ReadCacheTTL:  getEnvDuration("READ_CACHE_TTL", time.Hour),

		Workers:         getEnvInt("WORKERS", 4),
		WorkerQueueSize: getEnvInt("WORKER_QUEUE_SIZE", 64),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// PostgresDSN returns DATABASE_URL when set, otherwise a URL assembled
// from the DB_* variables.
func (c *Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.DBHost, c.DBPort),
		Path:   "/" + c.DBName,
	}
	if c.DBPassword != "" {
		u.User = url.UserPassword(c.DBUser, c.DBPassword)
	} else {
		u.User = url.User(c.DBUser)
	}
	if c.DBSSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{c.DBSSLMode}}.Encode()
	}
	return u.String()
}

// Location resolves TIMEZONE. All calendar-day comparisons use it.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimit < 1 || c.RateLimit > 100000 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be between 1 and 100000 requests per minute", c.RateLimit))
	}
	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR such as 10.0.0.0/8", cidr))
		}
	}
	if c.ShutdownTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %v: must be at least 1s", c.ShutdownTimeout))
	}

	// Validate transport
	if !slices.Contains(validTransports, c.Transport) {
		errors = append(errors, fmt.Sprintf("invalid transport '%s': must be one of %v", c.Transport, validTransports))
	}

	if c.Transport == "telegram" && c.TelegramToken == "" {
		errors = append(errors, "TELEGRAM_BOT_TOKEN is required when using telegram transport")
	}
	if c.TelegramPollTimeout < 0 || c.TelegramPollTimeout > 10*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid telegram poll timeout %v: must be between 0 and 10 minutes", c.TelegramPollTimeout))
	}

	// Validate AMQP configuration if transport is amqp
	if c.Transport == "amqp" && c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required when using amqp transport")
	}
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPInboundQueue == "" || c.AMQPReplyQueue == "" {
			errors = append(errors, "AMQP inbound and reply queue names cannot be empty when AMQP URL is provided")
		}
	}

	// Validate data backend
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// Validate PostgreSQL configuration if backend is postgres
	if c.DataBackend == "postgres" {
		if c.DatabaseURL != "" {
			if u, err := url.Parse(c.DatabaseURL); err != nil {
				errors = append(errors, fmt.Sprintf("invalid DATABASE_URL: %v", err))
			} else if u.Scheme != "postgres" && u.Scheme != "postgresql" {
				errors = append(errors, fmt.Sprintf("invalid DATABASE_URL scheme '%s': must be 'postgres' or 'postgresql'", u.Scheme))
			}
		} else {
			if c.DBHost == "" || c.DBName == "" || c.DBUser == "" {
				errors = append(errors, "DB_HOST, DB_NAME and DB_USER are required when DATABASE_URL is not set")
			}
			if port, err := strconv.Atoi(c.DBPort); err != nil || port < 1 || port > 65535 {
				errors = append(errors, fmt.Sprintf("invalid database port '%s'", c.DBPort))
			}
		}
		if c.DBMaxConns < 1 || c.DBMaxConns > 100 {
			errors = append(errors, fmt.Sprintf("invalid database max connections %d: must be between 1 and 100", c.DBMaxConns))
		}
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	// The name is handed to the database, so it must be an IANA zone.
	if strings.EqualFold(c.Timezone, "local") {
		errors = append(errors, "invalid timezone 'Local': use an IANA name such as 'Europe/Moscow'")
	} else if _, err := c.Location(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if c.StoreTimeout < 100*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid store timeout %v: must be at least 100ms", c.StoreTimeout))
	} else if c.StoreTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid store timeout %v: must be at most 5 minutes", c.StoreTimeout))
	}

	if c.ReadCacheSize < 0 || c.ReadCacheSize > 1000000 {
		errors = append(errors, fmt.Sprintf("invalid read cache size %d: must be between 0 and 1000000", c.ReadCacheSize))
	}
	if c.ReadCacheSize > 0 && c.ReadCacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid read cache ttl %v: must be positive", c.ReadCacheTTL))
	}

	// Validate worker configuration
	if c.Workers < 1 || c.Workers > 256 {
		errors = append(errors, fmt.Sprintf("invalid worker count %d: must be between 1 and 256", c.Workers))
	}
	if c.WorkerQueueSize < 1 || c.WorkerQueueSize > 10000 {
		errors = append(errors, fmt.Sprintf("invalid worker queue size %d: must be between 1 and 10000", c.WorkerQueueSize))
	}

	if !slices.Contains(validLogFormats, strings.ToLower(c.LogFormat)) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validLogFormats))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Warnings lists settings that are valid but probably unintended.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Transport == "http" && c.WebhookSecret == "" {
		warnings = append(warnings, "WEBHOOK_SECRET is empty: POST /v1/messages accepts expenses for any user_id without a check")
	}
	if c.DataBackend == "memory" {
		warnings = append(warnings, "DATA_BACKEND=memory: expenses are lost on restart")
	}
	return warnings
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
