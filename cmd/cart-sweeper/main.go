package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/cart"
	"github.com/ariefcatur/go-storefront-orders/internal/config"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/logging"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/ariefcatur/go-storefront-orders/internal/sweeper"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("%v", err)
	}
	logger, err := logging.New(cfg.LogLevel, zap.String("service", cfg.SweeperGroup))
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	os.Exit(logging.ExitCode(logger, "cart sweeper stopped", run(cfg, logger)))
}

func run(cfg config.Config, logger *zap.Logger) error {
	if cfg.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := redisx.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer rdb.Close()

	svc := &sweeper.Service{
		Cart:   cart.NewRedisStore(rdb, cfg.CartTTL),
		Redis:  rdb,
		Logger: logger,
	}
	consumer := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.SweeperGroup, orders.TopicOrderPlaced, cfg.SweeperWorkers,
		kafkax.WithLogger(logger))

	logger.Info("consuming", zap.String("topic", orders.TopicOrderPlaced), zap.String("group", cfg.SweeperGroup),
		zap.Int("workers", cfg.SweeperWorkers))
	return consumer.Start(ctx, svc.HandleOrderPlaced)
}
