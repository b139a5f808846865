package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"HTTP_ADDR", "POSTGRES_DSN", "REDIS_ADDR", "KAFKA_BROKERS", "SERVICE_NAME", "LOG_LEVEL",
		"TAX_RATE", "FREE_SHIPPING_THRESHOLD", "FLAT_SHIPPING_FEE", "CURRENCY", "STRIPE_SECRET_KEY",
		"CART_TTL", "SHUTDOWN_TIMEOUT", "SWEEPER_GROUP", "SWEEPER_WORKERS", "OTEL_STDOUT",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "OPERATOR_TOKEN",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Empty(t, cfg.PostgresDSN)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "order-api", cfg.ServiceName)
	assert.True(t, cfg.TaxRate.Equal(decimal.RequireFromString("0.10")))
	assert.True(t, cfg.FreeShippingThreshold.Equal(decimal.NewFromInt(100)))
	assert.True(t, cfg.FlatShippingFee.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "usd", cfg.Currency)
	assert.Equal(t, 7*24*time.Hour, cfg.CartTTL)
	assert.Equal(t, 4, cfg.SweeperWorkers)
	assert.False(t, cfg.OTelStdout)
	assert.Empty(t, cfg.OperatorToken)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("TAX_RATE", "0.075")
	t.Setenv("CURRENCY", "EUR")
	t.Setenv("CART_TTL", "48h")
	t.Setenv("OTEL_STDOUT", "1")
	t.Setenv("OPERATOR_TOKEN", "ops")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.TaxRate.Equal(decimal.RequireFromString("0.075")))
	assert.Equal(t, "eur", cfg.Currency)
	assert.Equal(t, 48*time.Hour, cfg.CartTTL)
	assert.True(t, cfg.OTelStdout)
	assert.Equal(t, "ops", cfg.OperatorToken)
}

func TestLoad_ReportsEveryInvalidValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("TAX_RATE", "ten percent")
	t.Setenv("CART_TTL", "a week")
	t.Setenv("SWEEPER_WORKERS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TAX_RATE")
	assert.Contains(t, err.Error(), "CART_TTL")
	assert.Contains(t, err.Error(), "SWEEPER_WORKERS")
}
