package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-storefront-orders/internal/config"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/logging"
	"github.com/ariefcatur/go-storefront-orders/internal/notify"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// notifier consumes notification requests published by the API and
// delivers them by email, once per event.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	log = log.With(zap.String("service", cfg.ServiceName+"-notifier"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	dispatcher := notify.NewDispatcher(notify.NewMailer(cfg.SMTP), redisx.Dedup{RDB: rdb}, log)
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.Notifier.Group, cfg.Notifier.Topic, cfg.Notifier.Workers, log)

	log.Info("notifier consumer started",
		zap.String("group", cfg.Notifier.Group), zap.String("topic", cfg.Notifier.Topic), zap.Int("workers", cfg.Notifier.Workers))
	if err := cons.Start(ctx, dispatcher.Handle); err != nil {
		log.Error("consumer exit", zap.Error(err))
		stop()
		os.Exit(1)
	}
	log.Info("notifier stopped")
}
