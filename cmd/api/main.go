package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/lowstock"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/returns"
	"github.com/angelmondragon/storefront-backend/internal/revenue"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const (
	serviceName     = "storefront-api"
	shutdownTimeout = 15 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})
	bootCtx := context.Background()

	if err := godotenv.Load(); err != nil {
		logg.Warn(bootCtx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(bootCtx, logg, "failed to load config", err)
	}
	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	if err != nil {
		fatal(bootCtx, logg, "failed to bootstrap database", err)
	}
	defer closeWith(bootCtx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient); err != nil {
		fatal(bootCtx, logg, "failed to run dev migrations", err)
	}

	redisClient, err := redis.New(bootCtx, cfg.Redis, logg)
	if err != nil {
		fatal(bootCtx, logg, "failed to bootstrap redis", err)
	}
	defer closeWith(bootCtx, logg, "redis", redisClient.Close)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	domainMetrics := metrics.NewDomainMetrics(reg)
	httpMetrics := metrics.NewHTTPMetrics(reg)

	svcs, err := buildServices(cfg, logg, dbClient, domainMetrics)
	if err != nil {
		fatal(bootCtx, logg, "failed to build services", err)
	}

	handler := routes.NewRouter(
		cfg,
		logg,
		dbClient,
		redisClient,
		httpMetrics,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		svcs,
	)

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(bootCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "addr": addr})

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(ctx, logg, "api server stopped unexpectedly", err)
		}
		return
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		fatal(ctx, logg, "api server shutdown failed", err)
	}
	logg.Info(ctx, "api server shut down")
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, domainMetrics *metrics.DomainMetrics) (routes.Services, error) {
	conn := dbClient.DB()
	products := product.NewRepository(conn)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)

	monitor, err := lowstock.NewMonitorFromConfig(cfg.LowStock, conn, products, logg, domainMetrics)
	if err != nil {
		return routes.Services{}, err
	}

	oracle, err := pricing.NewOracle(products)
	if err != nil {
		return routes.Services{}, err
	}
	ordersRepo := orders.NewRepository(conn)
	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:            ordersRepo,
		Tx:              dbClient,
		Oracle:          oracle,
		Outbox:          outboxSvc,
		StockObserver:   monitor,
		Logger:          logg,
		Metrics:         domainMetrics,
		DefaultCurrency: enums.Currency(cfg.Orders.DefaultCurrency),
	})
	if err != nil {
		return routes.Services{}, err
	}

	returnsSvc, err := returns.NewService(returns.ServiceParams{
		Repo:     returns.NewRepository(conn),
		Orders:   ordersRepo,
		Products: products,
		Tx:       dbClient,
		Outbox:   outboxSvc,
		Logger:   logg,
		Metrics:  domainMetrics,
	})
	if err != nil {
		return routes.Services{}, err
	}

	revenueSvc, err := revenue.NewService(revenue.NewRepository(conn), logg, enums.Currency(cfg.Orders.DefaultCurrency))
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Orders:   ordersSvc,
		Returns:  returnsSvc,
		LowStock: monitor,
		Revenue:  revenueSvc,
	}, nil
}

func fatal(ctx context.Context, logg *logger.Logger, msg string, err error) {
	logg.Error(ctx, msg, err)
	os.Exit(1)
}

func closeWith(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", name), "close failed", err)
	}
}
