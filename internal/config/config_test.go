package config

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATABASE_DRIVER", "WORKERS", "SUPPLIERS", "SUPPLIER_CACHE_TTL", "UPLOAD_RATE_INTERVAL", "UPLOAD_RATE_BURST"} {
		t.Setenv(key, "")
	}

	cfg := Load(zerolog.Nop())

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, 4, cfg.Workers)
	assert.Empty(t, cfg.Suppliers)
	assert.Equal(t, 5*time.Minute, cfg.SupplierCacheTTL)
	assert.Equal(t, 100*time.Millisecond, cfg.UploadInterval)
	assert.Equal(t, 30, cfg.UploadBurst)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_DRIVER", "Postgres")
	t.Setenv("WORKERS", "8")
	t.Setenv("SUPPLIERS", "ABC Trading, , XYZ Hardware")
	t.Setenv("SUPPLIER_CACHE_TTL", "30s")

	cfg := Load(zerolog.Nop())

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, []string{"ABC Trading", "XYZ Hardware"}, cfg.Suppliers)
	assert.Equal(t, 30*time.Second, cfg.SupplierCacheTTL)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "oracle")
	t.Setenv("WORKERS", "many")
	t.Setenv("SUPPLIER_CACHE_TTL", "soon")

	cfg := Load(zerolog.Nop())

	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 5*time.Minute, cfg.SupplierCacheTTL)
}
