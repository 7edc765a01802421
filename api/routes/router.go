package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	lowstockcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/lowstock"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	returncontrollers "github.com/angelmondragon/storefront-backend/api/controllers/returns"
	revenuecontrollers "github.com/angelmondragon/storefront-backend/api/controllers/revenue"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/lowstock"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/returns"
	"github.com/angelmondragon/storefront-backend/internal/revenue"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// Services bundles the domain services exposed over HTTP.
type Services struct {
	Orders   orders.Service
	Returns  returns.Service
	LowStock lowstock.Monitor
	Revenue  revenue.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	httpMetrics *metrics.HTTPMetrics,
	metricsHandler http.Handler,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, httpMetrics),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	var (
		idempotencyStore redis.IdempotencyStore
		limiter          middleware.RateLimiterStore
		readiness        = map[string]controllers.Pinger{}
	)
	if redisClient != nil {
		idempotencyStore = redisClient
		limiter = redisClient
		readiness["redis"] = redisClient
	}
	if dbP != nil {
		readiness["db"] = dbP
	}

	lowStockPolicy := middleware.RateLimitPolicy{
		Name:   "low-stock-events",
		Window: cfg.RateLimit.LowStockEventsWindow,
		Limit:  cfg.RateLimit.LowStockEventsLimit,
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Post("/orders", ordercontrollers.Create(svcs.Orders, cfg.Orders.DefaultShipping, logg))
		r.Get("/returns/{returnId}", returncontrollers.Detail(svcs.Returns, logg))

		r.Route("/low-stock", func(r chi.Router) {
			r.With(middleware.RateLimit(lowStockPolicy, limiter, logg)).Post("/events", lowstockcontrollers.RecordEvent(svcs.LowStock, logg))
			r.Get("/alerts", lowstockcontrollers.ListAlerts(svcs.LowStock, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuthenticated(logg))
			r.Get("/me/orders", ordercontrollers.ListMine(svcs.Orders, logg))
			r.Get("/orders/{orderId}", ordercontrollers.Detail(svcs.Orders, logg))
			r.Post("/orders/{orderId}/returns", returncontrollers.Request(svcs.Returns, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.RoleAdmin, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.AdminList(svcs.Orders, logg))
			r.Patch("/{orderId}", ordercontrollers.Advance(svcs.Orders, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(svcs.Orders, logg))
		})
		r.Route("/returns", func(r chi.Router) {
			r.Get("/", returncontrollers.AdminList(svcs.Returns, logg))
			r.Post("/{returnId}/decision", returncontrollers.Decide(svcs.Returns, logg))
			r.Post("/{returnId}/refund", returncontrollers.Refund(svcs.Returns, logg))
		})
		r.Get("/revenue", revenuecontrollers.Get(svcs.Revenue, logg))
	})

	return r
}
