package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/cart"
	"github.com/ariefcatur/go-storefront-orders/internal/config"
	"github.com/ariefcatur/go-storefront-orders/internal/httpx"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/lifecycle"
	"github.com/ariefcatur/go-storefront-orders/internal/logging"
	"github.com/ariefcatur/go-storefront-orders/internal/notify"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/payment"
	"github.com/ariefcatur/go-storefront-orders/internal/payment/stripecheckout"
	"github.com/ariefcatur/go-storefront-orders/internal/payment/transbank"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("api exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer for outbound notifications; the producer loop gets its
	// own context so it can drain after the signal.
	prodCtx, stopProd := context.WithCancel(context.Background())
	defer stopProd()
	prod := kafkax.NewProducer(cfg.KafkaBrokers, cfg.Notifier.Topic, 1024, log)
	prod.Start(prodCtx)

	gw, err := newGateway(cfg)
	if err != nil {
		return err
	}
	verifier, err := auth.NewVerifier(cfg.JWTSecret)
	if err != nil {
		return err
	}

	orderRepo := &orders.Repo{DB: db}
	orch := payment.NewOrchestrator(gw, cfg.FrontendURL, nil, log)
	mgr := lifecycle.New(lifecycle.Deps{
		Tx:         postgres.TxRunner{Pool: db},
		Orders:     orderRepo,
		Carts:      &cart.Repo{DB: db},
		Ledger:     inventory.NewLedger(&orders.ReservationRepo{DB: db}, log),
		Builder:    orders.NewBuilder(orderRepo, orch.Method(), nil),
		Payments:   orch,
		Notifier:   notify.NewPublisher(prod, cfg.ServiceName),
		Contacts:   &orders.ContactRepo{DB: db},
		Guard:      redisx.CallbackGuard{RDB: rdb},
		Cache:      redisx.StatusCache{RDB: rdb},
		AdminEmail: cfg.AdminEmail,
		Log:        log,
	})

	router := httpx.NewRouter(log)
	oh := &httpx.OrdersHandler{Svc: mgr, Log: log}
	oh.Register(router, httpx.Authenticate(verifier, log))

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("gateway", gw.Method()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	err = g.Wait()

	prod.Close()
	prod.WaitClosed()
	return err
}

func newGateway(cfg config.Config) (payment.Gateway, error) {
	switch cfg.Gateway.Provider {
	case config.GatewayStripe:
		return stripecheckout.New(stripecheckout.Config{APIKey: cfg.Gateway.StripeKey, Currency: cfg.Gateway.Currency})
	default:
		return transbank.New(transbank.Config{
			Environment:  cfg.Gateway.Environment,
			CommerceCode: cfg.Gateway.CommerceCode,
			APIKey:       cfg.Gateway.APIKey,
		})
	}
}
