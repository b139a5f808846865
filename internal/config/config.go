package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPAddr     string
	PostgresDSN  string // empty runs the in-memory store
	RedisAddr    string // empty disables cart, idempotency and caching
	KafkaBrokers []string
	ServiceName  string
	LogLevel     string

	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	FlatShippingFee       decimal.Decimal
	Currency              string

	StripeSecretKey string
	CartTTL         time.Duration
	OperatorToken   string // empty refuses every /internal request

	SweeperGroup   string
	SweeperWorkers int

	OTelStdout      bool
	OTLPEndpoint    string
	ShutdownTimeout time.Duration
}

func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":8081"),
		PostgresDSN:     os.Getenv("POSTGRES_DSN"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		KafkaBrokers:    splitCSV(os.Getenv("KAFKA_BROKERS")),
		ServiceName:     getenv("SERVICE_NAME", "order-api"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		Currency:        strings.ToLower(getenv("CURRENCY", "usd")),
		StripeSecretKey: os.Getenv("STRIPE_SECRET_KEY"),
		OperatorToken:   os.Getenv("OPERATOR_TOKEN"),
		SweeperGroup:    getenv("SWEEPER_GROUP", "cart-sweeper"),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	var errs []error
	cfg.TaxRate = getDecimal("TAX_RATE", "0.10", &errs)
	cfg.FreeShippingThreshold = getDecimal("FREE_SHIPPING_THRESHOLD", "100", &errs)
	cfg.FlatShippingFee = getDecimal("FLAT_SHIPPING_FEE", "10", &errs)
	cfg.CartTTL = getDuration("CART_TTL", 7*24*time.Hour, &errs)
	cfg.ShutdownTimeout = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second, &errs)
	cfg.SweeperWorkers = getInt("SWEEPER_WORKERS", 4, &errs)
	cfg.OTelStdout = getBool("OTEL_STDOUT", false, &errs)

	if cfg.SweeperWorkers < 1 {
		errs = append(errs, fmt.Errorf("SWEEPER_WORKERS must be positive, got %d", cfg.SweeperWorkers))
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getDecimal(k, def string, errs *[]error) decimal.Decimal {
	v := getenv(k, def)
	d, err := decimal.NewFromString(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid decimal %q", k, v))
		return decimal.Zero
	}
	return d
}

func getDuration(k string, def time.Duration, errs *[]error) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid duration %q", k, v))
		return def
	}
	return d
}

func getInt(k string, def int, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid integer %q", k, v))
		return def
	}
	return n
}

func getBool(k string, def bool, errs *[]error) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid boolean %q", k, v))
		return def
	}
	return b
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
