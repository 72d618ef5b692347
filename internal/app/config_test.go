package app

import (
	"testing"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoad() (*Config, error) {
	return load(aconfig.Config{
		EnvPrefix: "STOREFRONT",
		SkipFiles: true,
		SkipFlags: true,
	})
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STOREFRONT_DATABASE_URL", "postgres://localhost/storefront")
	t.Setenv("STOREFRONT_API_KEY_PEPPER", "pepper")

	cfg, err := testLoad()
	require.NoError(t, err)
	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Equal(t, 24*time.Hour, cfg.RevocationTTL)
	assert.True(t, cfg.Orders.RestoreStockOnCancel)
	assert.Equal(t, "permissive", cfg.Orders.TransitionPolicy)
	assert.Equal(t, "storefront.orders", cfg.Kafka.Topic)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 100, cfg.RateLimit.Max)
	assert.Equal(t, []string{"*"}, cfg.CORS.Origins)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("STOREFRONT_DATABASE_URL", "postgres://localhost/storefront")
	t.Setenv("STOREFRONT_API_KEY_PEPPER", "pepper")
	t.Setenv("STOREFRONT_ORDERS_TRANSITION_POLICY", "strict")
	t.Setenv("STOREFRONT_ORDERS_RESTORE_STOCK_ON_CANCEL", "false")
	t.Setenv("STOREFRONT_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := testLoad()
	require.NoError(t, err)
	assert.Equal(t, "strict", cfg.Orders.TransitionPolicy)
	assert.False(t, cfg.Orders.RestoreStockOnCancel)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("REDIS_URL", "redis://platform:6379/0")
	t.Setenv("PORT", "9000")
	t.Setenv("STOREFRONT_API_KEY_PEPPER", "pepper")

	cfg, err := testLoad()
	require.NoError(t, err)
	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "redis://platform:6379/0", cfg.RedisURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STOREFRONT_API_KEY_PEPPER", "pepper")
	_, err := testLoad()
	assert.ErrorContains(t, err, "database URL is required")

	t.Setenv("STOREFRONT_DATABASE_URL", "postgres://localhost/storefront")
	t.Setenv("STOREFRONT_ORDERS_TRANSITION_POLICY", "chaotic")
	_, err = testLoad()
	assert.ErrorContains(t, err, "unknown transition policy")

	t.Setenv("STOREFRONT_ORDERS_TRANSITION_POLICY", "strict")
	t.Setenv("STOREFRONT_API_KEY_PEPPER", "")
	_, err = testLoad()
	assert.ErrorContains(t, err, "pepper is required")
}

func TestLoad_InvalidRateLimit(t *testing.T) {
	t.Setenv("STOREFRONT_DATABASE_URL", "postgres://localhost/storefront")
	t.Setenv("STOREFRONT_API_KEY_PEPPER", "pepper")

	t.Setenv("STOREFRONT_RATE_LIMIT_WINDOW", "0s")
	_, err := testLoad()
	assert.ErrorContains(t, err, "rate limit")

	t.Setenv("STOREFRONT_RATE_LIMIT_WINDOW", "1m")
	t.Setenv("STOREFRONT_RATE_LIMIT_MAX", "-1")
	_, err = testLoad()
	assert.ErrorContains(t, err, "rate limit")
}
