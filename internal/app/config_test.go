package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("QE_AUTH_JWT_SECRET", "s3cret")

	cfg, err := loadConfig(true)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "quickeats.orders", cfg.Kafka.Topic)
	assert.Equal(t, 100, cfg.RateLimit.Max)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 720*time.Hour, cfg.Session.TTL)
	assert.Equal(t, []string{"*"}, cfg.CORS.Origins)
	assert.Equal(t, 15*time.Second, cfg.Graceful.ShutdownTimeout)
}

func TestLoadConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("QE_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("DATABASE_URL", "postgres://db/quickeats")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("PORT", "9000")

	cfg, err := loadConfig(true)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
	assert.Equal(t, "postgres://db/quickeats", cfg.DatabaseURL)
	assert.Equal(t, "redis://cache:6379/0", cfg.RedisURL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadConfig_PrefixedWins(t *testing.T) {
	t.Setenv("QE_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("QE_DATABASE_URL", "postgres://primary")
	t.Setenv("DATABASE_URL", "postgres://platform")
	t.Setenv("QE_ADDR", "127.0.0.1:7000")
	t.Setenv("PORT", "9000")

	cfg, err := loadConfig(true)
	require.NoError(t, err)

	assert.Equal(t, "postgres://primary", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr, "explicit address ignores PORT")
}

func TestLoadConfig_Validation(t *testing.T) {
	_, err := loadConfig(true)
	require.ErrorContains(t, err, "jwt secret is required")

	t.Setenv("QE_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("QE_RATE_LIMIT_MAX", "0")
	_, err = loadConfig(true)
	require.ErrorContains(t, err, "rate limit")
}
