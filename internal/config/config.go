package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// AppConfig holds all runtime configuration, loaded from the environment.
type AppConfig struct {
	Port               string
	LogLevel           string
	DatabaseDriver     string // "sqlite" or "postgres"
	DatabaseURL        string
	StorageDir         string
	Workers            int
	MaxUploadSizeBytes int64

	// UploadInterval and UploadBurst shape the upload token bucket.
	UploadInterval time.Duration
	UploadBurst    int

	// Suppliers seeds the supplier allowlist.
	Suppliers        []string
	SupplierCacheTTL time.Duration

	// AllocationRetries bounds re-selection after a stale transfer balance.
	AllocationRetries int
}

// Load reads a .env file if present, then the process environment.
// Invalid values fall back to defaults with a warning.
func Load(log zerolog.Logger) *AppConfig {
	if err := godotenv.Load(); err != nil {
		if os.IsNotExist(err) {
			log.Debug().Msg("no .env file found, relying on environment variables")
		} else {
			log.Warn().Err(err).Msg("error loading .env file, relying on environment variables")
		}
	}

	cfg := &AppConfig{
		Port:               getEnv("PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseDriver:     strings.ToLower(getEnv("DATABASE_DRIVER", "sqlite")),
		DatabaseURL:        getEnv("DATABASE_URL", "creditpilot.db"),
		StorageDir:         getEnv("STORAGE_DIR", "data/originals"),
		Workers:            getEnvAsInt(log, "WORKERS", 4),
		MaxUploadSizeBytes: int64(getEnvAsInt(log, "MAX_UPLOAD_SIZE_BYTES", 20*1024*1024)),
		UploadInterval:     getEnvAsDuration(log, "UPLOAD_RATE_INTERVAL", 100*time.Millisecond),
		UploadBurst:        getEnvAsInt(log, "UPLOAD_RATE_BURST", 30),
		Suppliers:          getEnvAsList("SUPPLIERS"),
		SupplierCacheTTL:   getEnvAsDuration(log, "SUPPLIER_CACHE_TTL", 5*time.Minute),
		AllocationRetries:  getEnvAsInt(log, "ALLOCATION_RETRIES", 3),
	}
	if cfg.DatabaseDriver != "sqlite" && cfg.DatabaseDriver != "postgres" {
		log.Warn().Str("driver", cfg.DatabaseDriver).Msg("unknown DATABASE_DRIVER, using sqlite")
		cfg.DatabaseDriver = "sqlite"
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvAsInt(log zerolog.Logger, key string, fallback int) int {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		log.Warn().Str("key", key).Str("value", s).Int("default", fallback).Msg("invalid integer, using default")
		return fallback
	}
	return v
}

func getEnvAsDuration(log zerolog.Logger, key string, fallback time.Duration) time.Duration {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		log.Warn().Str("key", key).Str("value", s).Dur("default", fallback).Msg("invalid duration, using default")
		return fallback
	}
	return v
}

// getEnvAsList splits a comma separated value, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
