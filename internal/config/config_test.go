package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CART_STORE", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, CartStoreSQLite, cfg.CartStore)
	assert.Equal(t, 15*time.Second, cfg.BackendTimeout)
	assert.Equal(t, "/v1/checkout/apply_coupon", cfg.CouponPath)
	assert.False(t, cfg.LedgerEnabled())
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CART_STORE", "Redis")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("BACKEND_TIMEOUT", "3s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("APP_ENV", "production")

	cfg := Load()

	assert.Equal(t, CartStoreRedis, cfg.CartStore)
	assert.True(t, cfg.LedgerEnabled())
	assert.Equal(t, 6543, cfg.DBPort)
	assert.Equal(t, 3*time.Second, cfg.BackendTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.IsProduction())
}

func TestGetDuration_InvalidFallsBack(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "soon")
	assert.Equal(t, 10*time.Second, getDuration("SHUTDOWN_TIMEOUT", 10*time.Second))
}

func TestLoad_CacheAndSessions(t *testing.T) {
	t.Setenv("CART_CACHE", "true")
	t.Setenv("SESSION_TTL", "30m")

	cfg := Load()

	assert.True(t, cfg.CartCache)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 5*time.Minute, cfg.SessionSweepInterval)
}

func TestGetBool_InvalidFallsBack(t *testing.T) {
	t.Setenv("CART_CACHE", "maybe")
	assert.False(t, getBool("CART_CACHE", false))
}
