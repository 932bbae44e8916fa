/*
Package configs is responsible for loading and parsing the application's configuration settings.

Everything is read from environment variables: the running environment, HTTP port, CORS
origins, Proof-of-Work difficulty, JWT secret, the Postgres DSN, the optional Redis URL
for shared slow-mode timers and the optional S3 settings for avatar uploads.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// AppConfig contains all configuration parameters required for the application to run.
type AppConfig struct {
	// General Server Settings
	Environment   string
	Port          int
	PowDifficulty int
	LogLevel      string

	// Security Settings
	AllowedOrigins []string
	JWTSecret      string

	// Chat Settings
	HistoryLimit int

	// Database Settings. An empty DSN in development selects the in-memory store.
	DatabaseDSN string

	// Redis Settings. An empty URL keeps slow-mode timers in process memory.
	RedisURL string

	// S3 Storage Settings. Avatar uploads are disabled unless all four are set.
	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// IsDevelopment reports whether the server runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// S3Enabled reports whether all S3 settings are present.
func (c *AppConfig) S3Enabled() bool {
	return c.S3BucketName != "" && c.S3Endpoint != "" && c.S3AccessKeyID != "" && c.S3SecretAccessKey != ""
}

// LoadConfig reads and parses the application configuration from environment variables.
// It applies defaults, converts types and validates the values, returning any error encountered.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}

	// --- General Server Settings ---
	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	port, err := intFromEnv("PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port < 1024 || port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", port, 1024, 65535)
	}
	cfg.Port = port

	difficulty, err := intFromEnv("POW_DIFFICULTY", 4)
	if err != nil {
		return nil, err
	}
	if difficulty < 0 || difficulty > 8 {
		return nil, fmt.Errorf("POW_DIFFICULTY must be between 0 and 8, got %d", difficulty)
	}
	cfg.PowDifficulty = difficulty

	cfg.LogLevel = os.Getenv("LOG_LEVEL")

	// --- Security Settings ---
	cfg.AllowedOrigins = []string{}
	if originsStr := os.Getenv("ALLOWED_ORIGINS"); originsStr != "" {
		for _, origin := range strings.Split(originsStr, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required in %s environment for security", cfg.Environment)
		}
		jwtSecret = "your_default_insecure_secret_key_change_me"
	}
	cfg.JWTSecret = jwtSecret

	// --- Chat Settings ---
	historyLimit, err := intFromEnv("HISTORY_LIMIT", 50)
	if err != nil {
		return nil, err
	}
	if historyLimit <= 0 {
		return nil, fmt.Errorf("HISTORY_LIMIT must be positive, got %d", historyLimit)
	}
	cfg.HistoryLimit = historyLimit

	// --- Database Settings ---
	cfg.DatabaseDSN = os.Getenv("DATABASE_URL")
	if cfg.DatabaseDSN == "" && !cfg.IsDevelopment() {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required in %s environment", cfg.Environment)
	}

	// --- Redis Settings ---
	cfg.RedisURL = os.Getenv("REDIS_URL")

	// --- S3 Storage Settings ---
	cfg.S3BucketName = os.Getenv("S3_BUCKET_NAME")
	cfg.S3Endpoint = os.Getenv("S3_ENDPOINT")
	cfg.S3AccessKeyID = os.Getenv("S3_ACCESS_KEY_ID")
	cfg.S3SecretAccessKey = os.Getenv("S3_SECRET_ACCESS_KEY")

	return cfg, nil
}

func intFromEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return value, nil
}
