package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tijarahq/tijara-backend/api/routes"
	"github.com/tijarahq/tijara-backend/internal/cart"
	"github.com/tijarahq/tijara-backend/internal/catalog"
	"github.com/tijarahq/tijara-backend/internal/checkout"
	"github.com/tijarahq/tijara-backend/internal/inventory"
	"github.com/tijarahq/tijara-backend/internal/orders"
	"github.com/tijarahq/tijara-backend/internal/payments"
	"github.com/tijarahq/tijara-backend/pkg/config"
	"github.com/tijarahq/tijara-backend/pkg/db"
	"github.com/tijarahq/tijara-backend/pkg/logger"
	"github.com/tijarahq/tijara-backend/pkg/metrics"
	"github.com/tijarahq/tijara-backend/pkg/migrate"
	"github.com/tijarahq/tijara-backend/pkg/outbox"
	"github.com/tijarahq/tijara-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	svcs, err := buildServices(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, svcs),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-shutdownCtx.Done():
		logg.Info(ctx, "shutting down api server")
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(timeoutCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
			os.Exit(1)
		}
	}
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (routes.Services, error) {
	gormDB := dbClient.DB()

	cartRepo := cart.NewRepository(gormDB)
	catalogRepo := catalog.NewRepository(gormDB)
	ordersRepo := orders.NewRepository(gormDB)
	paymentsRepo := payments.NewRepository(gormDB)

	machine := orders.NewMachine()
	ledger := inventory.NewLedger()
	chain := cart.NewChain()
	publisher := outbox.NewService(outbox.NewRepository(gormDB), logg)

	cartSvc, err := cart.NewService(cartRepo, catalogRepo, chain, dbClient)
	if err != nil {
		return routes.Services{}, err
	}

	checkoutSvc, err := checkout.NewService(
		cartRepo, catalogRepo, ordersRepo, machine, chain, ledger,
		dbClient, publisher, cfg.Checkout.OrderTTL,
	)
	if err != nil {
		return routes.Services{}, err
	}

	ordersSvc, err := orders.NewService(ordersRepo, dbClient, machine, publisher, ledger)
	if err != nil {
		return routes.Services{}, err
	}

	httpGateway, err := payments.NewHTTPGateway(cfg.Gateway)
	if err != nil {
		return routes.Services{}, err
	}
	selector := payments.NewSelector(httpGateway, payments.NewCashGateway())

	reconciler, err := payments.NewReconciler(
		paymentsRepo, ordersRepo, machine, ledger, dbClient, publisher,
		metrics.NewReconcileMetrics(prometheus.DefaultRegisterer),
	)
	if err != nil {
		return routes.Services{}, err
	}

	guard, err := payments.NewIdempotencyGuard(redisClient, cfg.Gateway.WebhookIDTTL, "gateway")
	if err != nil {
		return routes.Services{}, err
	}

	paymentsSvc, err := payments.NewService(ordersRepo, selector, reconciler, guard, logg)
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Cart:     cartSvc,
		Checkout: checkoutSvc,
		Orders:   ordersSvc,
		Payments: paymentsSvc,
	}, nil
}
