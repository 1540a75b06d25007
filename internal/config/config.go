// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"duck-ingest/internal/domain"
)

// Config holds the configuration shared by the ingest CLI and HTTP server.
type Config struct {
	MetaDBPath string // path to SQLite metadata catalog
	ListenAddr string // HTTP listen address (default ":8080")
	LogLevel   string // debug, info, warn, error (default "info")
	LogFormat  string // text or json (default "text")
	Env        string // "development" (default) or "production"

	// Target warehouse connection.
	TargetDriver  string // database/sql driver name (default "duckdb")
	TargetDSN     string
	StagingSchema string // empty disables staging loads

	// Pipeline settings.
	BatchSize      int
	MaxViolations  int
	ValidationMode string // LOG, WARN, REJECT, FIX or CONTINUE
	Parallelism    int
	FunctionsFile  string // optional Starlark module with transform functions
	TriggeredBy    string
	DryRun         bool // set by --dry-run, never from the environment

	// EncryptionKey is a hex-encoded 32-byte key; when set, source-system
	// DSNs are encrypted in the metadata catalog.
	EncryptionKey string

	RateLimitRPS       float64
	RateLimitBurst     int
	CORSAllowedOrigins []string

	// Warnings collects non-fatal configuration issues detected during loading.
	// Callers should log these after initializing the logger.
	Warnings []string
}

// SlogLevel converts the LogLevel string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// NewLogger builds the process logger from LogLevel and LogFormat.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// LoadFromEnv reads configuration from environment variables, applying
// defaults for anything unset.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		MetaDBPath:     os.Getenv("META_DB_PATH"),
		ListenAddr:     os.Getenv("LISTEN_ADDR"),
		LogLevel:       os.Getenv("LOG_LEVEL"),
		LogFormat:      strings.ToLower(os.Getenv("LOG_FORMAT")),
		Env:            os.Getenv("ENV"),
		TargetDriver:   os.Getenv("TARGET_DRIVER"),
		TargetDSN:      os.Getenv("TARGET_DSN"),
		ValidationMode: strings.ToUpper(strings.TrimSpace(os.Getenv("VALIDATION_MODE"))),
		FunctionsFile:  os.Getenv("FUNCTIONS_FILE"),
		TriggeredBy:    os.Getenv("TRIGGERED_BY"),
		EncryptionKey:  os.Getenv("ENCRYPTION_KEY"),
	}

	// STAGING_SCHEMA distinguishes unset (default) from explicitly empty.
	if v, ok := os.LookupEnv("STAGING_SCHEMA"); ok {
		cfg.StagingSchema = strings.TrimSpace(v)
	} else {
		cfg.StagingSchema = "staging"
	}

	var err error
	if cfg.BatchSize, err = parseIntEnv("BATCH_SIZE", 5000); err != nil {
		return nil, err
	}
	if cfg.MaxViolations, err = parseIntEnv("MAX_VIOLATIONS", 1000); err != nil {
		return nil, err
	}
	if cfg.Parallelism, err = parseIntEnv("PARALLELISM", 1); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = parseIntEnv("RATE_LIMIT_BURST", 100); err != nil {
		return nil, err
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimitRPS = f
	}

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = compactNonEmpty(origins)
	}

	// Defaults
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = "ingest_meta.sqlite"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	switch cfg.LogFormat {
	case "":
		cfg.LogFormat = "text"
	case "text", "json":
	default:
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("unknown LOG_FORMAT %q, using text", cfg.LogFormat))
		cfg.LogFormat = "text"
	}
	if cfg.TargetDriver == "" {
		cfg.TargetDriver = "duckdb"
	}
	if cfg.TargetDSN == "" {
		cfg.TargetDSN = "ingest_target.duckdb"
	}
	mode, err := domain.ParseAction(cfg.ValidationMode)
	if err != nil {
		return nil, fmt.Errorf("VALIDATION_MODE: %w", err)
	}
	cfg.ValidationMode = string(mode)
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("BATCH_SIZE must be positive, got %d", cfg.BatchSize)
	}
	if cfg.Parallelism <= 0 {
		return nil, fmt.Errorf("PARALLELISM must be positive, got %d", cfg.Parallelism)
	}
	if cfg.TriggeredBy == "" {
		cfg.TriggeredBy = os.Getenv("USER")
	}
	if cfg.TriggeredBy == "" {
		cfg.TriggeredBy = "system"
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 50
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.StagingSchema == "" {
		cfg.Warnings = append(cfg.Warnings, "STAGING_SCHEMA is empty, staging loads are disabled")
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		for _, o := range cfg.CORSAllowedOrigins {
			if o == "*" {
				return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
			}
		}
		if cfg.EncryptionKey == "" {
			cfg.Warnings = append(cfg.Warnings, "ENCRYPTION_KEY is not set, source DSNs are stored in plaintext")
		}
	}

	return cfg, nil
}

func parseIntEnv(key string, defaultVal int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		if _, set := os.LookupEnv(key); !set {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
