package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"struk/internal/core"
)

type Config struct {
	// HTTP Server
	Port     string
	LogLevel string

	// Document store
	DocumentBackend string
	SQLiteDBPath    string
	PostgresDSN     string
	StoreTimeout    time.Duration

	// Cache
	CacheBackend     string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	CacheMaxEntries  int
	ReceiptsCacheTTL time.Duration
	ProfileCacheTTL  time.Duration

	// Rate limiting
	LoginMaxAttempts     int
	LoginWindowSeconds   int
	APIRequestsPerMinute int

	// Receipt validation
	BalanceCheck       string
	BalanceToleranceBP int64

	// Identity
	JWTSecret string
	JWTIssuer string

	// Extraction
	GeminiAPIKey      string
	GeminiModel       string
	ExtractionTimeout time.Duration
	UploadMaxBytes    int64
	UploadTempDir     string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets mirror (worker)
	GoogleSpreadsheetID string
	GoogleSheetName     string
}

func Load() *Config {
	cfg := &Config{
		Port:     getEnv("PORT", "8081"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DocumentBackend: getEnv("DOCUMENT_BACKEND", "sqlite"),
		SQLiteDBPath:    getEnv("SQLITE_DB_PATH", "./data/struk.db"),
		PostgresDSN:     getEnv("POSTGRES_DSN", ""),
		StoreTimeout:    getEnvDuration("STORE_TIMEOUT", 5*time.Second),

		CacheBackend:     getEnv("CACHE_BACKEND", "memory"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		CacheMaxEntries:  getEnvInt("CACHE_MAX_ENTRIES", 10000),
		ReceiptsCacheTTL: getEnvDuration("RECEIPTS_CACHE_TTL", time.Hour),
		ProfileCacheTTL:  getEnvDuration("PROFILE_CACHE_TTL", time.Hour),

		LoginMaxAttempts:     getEnvInt("LOGIN_MAX_ATTEMPTS", 5),
		LoginWindowSeconds:   getEnvInt("LOGIN_WINDOW_SECONDS", 900),
		APIRequestsPerMinute: getEnvInt("API_REQUESTS_PER_MINUTE", 120),

		BalanceCheck:       getEnv("BALANCE_CHECK", string(core.BalanceWarn)),
		BalanceToleranceBP: int64(getEnvInt("BALANCE_TOLERANCE_BP", 500)),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", ""),

		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		ExtractionTimeout: getEnvDuration("EXTRACTION_TIMEOUT", 30*time.Second),
		UploadMaxBytes:    int64(getEnvInt("UPLOAD_MAX_BYTES", 5<<20)),
		UploadTempDir:     getEnv("UPLOAD_TEMP_DIR", os.TempDir()),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "struk"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "receipt_events"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Receipts"),
	}

	return cfg
}

// BalancePolicy returns the finalTotal check configured for receipt writes.
func (c *Config) BalancePolicy() core.BalancePolicy {
	return core.BalancePolicy{Mode: core.BalanceMode(c.BalanceCheck), ToleranceBP: c.BalanceToleranceBP}
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

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	// Validate document backend
	switch c.DocumentBackend {
	case "memory":
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			// Check if directory exists or can be created
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	case "postgres":
		if c.PostgresDSN == "" {
			errors = append(errors, "POSTGRES_DSN is required when using postgres backend")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid document backend '%s': must be one of [memory sqlite postgres]", c.DocumentBackend))
	}
	if c.StoreTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid store timeout %v: must be positive", c.StoreTimeout))
	}

	// Validate cache
	switch c.CacheBackend {
	case "memory":
		if c.CacheMaxEntries < 1 {
			errors = append(errors, fmt.Sprintf("invalid cache max entries %d: must be at least 1", c.CacheMaxEntries))
		}
	case "redis":
		if c.RedisAddr == "" {
			errors = append(errors, "REDIS_ADDR is required when using redis cache")
		}
		if c.RedisDB < 0 {
			errors = append(errors, fmt.Sprintf("invalid redis db %d: must not be negative", c.RedisDB))
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid cache backend '%s': must be one of [memory redis]", c.CacheBackend))
	}
	if c.ReceiptsCacheTTL <= 0 || c.ProfileCacheTTL <= 0 {
		errors = append(errors, "cache TTLs must be positive")
	}

	// Validate rate limits
	if c.LoginMaxAttempts < 1 {
		errors = append(errors, fmt.Sprintf("invalid login max attempts %d: must be at least 1", c.LoginMaxAttempts))
	}
	if c.LoginWindowSeconds < 1 {
		errors = append(errors, fmt.Sprintf("invalid login window %d: must be at least 1 second", c.LoginWindowSeconds))
	}
	if c.APIRequestsPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid API requests per minute %d: must be at least 1", c.APIRequestsPerMinute))
	}

	// Validate balance policy
	if !core.BalanceMode(c.BalanceCheck).IsValid() {
		errors = append(errors, fmt.Sprintf("invalid balance check '%s': must be one of off, warn, strict", c.BalanceCheck))
	}
	if c.BalanceToleranceBP < 0 || c.BalanceToleranceBP > 10000 {
		errors = append(errors, fmt.Sprintf("invalid balance tolerance %d: must be between 0 and 10000 basis points", c.BalanceToleranceBP))
	}

	// Validate extraction settings
	if c.ExtractionTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid extraction timeout %v: must be positive", c.ExtractionTimeout))
	}
	if c.UploadMaxBytes < 1 {
		errors = append(errors, fmt.Sprintf("invalid upload max bytes %d: must be positive", c.UploadMaxBytes))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateServer runs Validate and checks the settings only the API server needs.
func (c *Config) ValidateServer() error {
	var errors []string
	if err := c.Validate(); err != nil {
		errors = append(errors, strings.TrimPrefix(err.Error(), "configuration validation failed:\n- "))
	}
	if c.JWTSecret == "" {
		errors = append(errors, "JWT_SECRET is required")
	} else if len(c.JWTSecret) < 32 {
		errors = append(errors, "JWT_SECRET must be at least 32 bytes")
	}
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateWorker checks the settings the mirror worker needs on top of the store.
func (c *Config) ValidateWorker() error {
	var errors []string
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the worker")
	}
	if c.GoogleSpreadsheetID != "" && strings.TrimSpace(c.GoogleSheetName) == "" {
		errors = append(errors, "GOOGLE_SHEET_NAME cannot be empty when GOOGLE_SPREADSHEET_ID is set")
	}
	if len(errors) > 0 {
		return fmt.Errorf("worker configuration invalid:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
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
