package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/cart"
	"github.com/ariefcatur/go-storefront-orders/internal/config"
	"github.com/ariefcatur/go-storefront-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/logging"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/payments"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/ariefcatur/go-storefront-orders/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("%v", err)
	}
	logger, err := logging.New(cfg.LogLevel, zap.String("service", cfg.ServiceName))
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	os.Exit(logging.ExitCode(logger, "order api stopped", err))
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	shutdownTracing, err := telemetry.Init(ctx, telemetry.Options{
		ServiceName:  cfg.ServiceName,
		OTLPEndpoint: cfg.OTLPEndpoint,
		Stdout:       cfg.OTelStdout,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	// DB
	var store orders.Store
	if cfg.PostgresDSN == "" {
		logger.Warn("POSTGRES_DSN not set, using in-memory store")
		store = orders.NewMemStore()
	} else {
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			return err
		}
		store = orders.NewPGStore(pool)
	}

	// Redis
	var (
		rdb   *redis.Client
		carts cart.Store
	)
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set, carts are in memory and Idempotency-Key is ignored")
		carts = cart.NewMemoryStore()
	} else {
		rdb, err = redisx.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		carts = cart.NewRedisStore(rdb, cfg.CartTTL)
	}

	deps := orders.ServiceDeps{
		Store:    store,
		Cart:     carts,
		Logger:   logger,
		Tracer:   otel.Tracer("order-api"),
		Producer: cfg.ServiceName,
		Pricing: &orders.PricingPolicy{
			TaxRate:               cfg.TaxRate,
			FreeShippingThreshold: cfg.FreeShippingThreshold,
			FlatShippingFee:       cfg.FlatShippingFee,
		},
	}

	// Kafka producers
	if len(cfg.KafkaBrokers) > 0 {
		placed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPlaced, 1024, logger)
		changed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatusChanged, 1024, logger)
		placed.Start()
		changed.Start()
		pub := kafkax.NewTopicPublisher(placed, changed)
		defer pub.Close()
		deps.Events = pub
	} else {
		logger.Warn("KAFKA_BROKERS not set, events are not published")
	}

	if cfg.StripeSecretKey != "" {
		gw, err := payments.NewStripeGateway(payments.StripeConfig{
			APIKey:   cfg.StripeSecretKey,
			Currency: cfg.Currency,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		deps.Payments = gw
	}

	svc, err := orders.NewService(deps)
	if err != nil {
		return err
	}

	if cfg.OperatorToken == "" {
		logger.Warn("OPERATOR_TOKEN not set, /internal routes refuse every request")
	}

	router := httpx.NewRouter(logger)
	(&httpx.OrdersHandler{Orders: svc, Redis: rdb, Logger: logger, OperatorToken: cfg.OperatorToken}).Register(router)
	(&httpx.ProductsHandler{Catalog: svc, Logger: logger}).Register(router)
	(&httpx.CartHandler{Cart: carts, Catalog: svc, Logger: logger}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	errc := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	// deferred: producers flush, then redis, pool and tracing close
	return nil
}
