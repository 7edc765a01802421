package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/lowstock"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/returns"
	"github.com/angelmondragon/storefront-backend/internal/revenue"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

type testServer struct {
	handler http.Handler
	conn    *gorm.DB
	cfg     *config.Config
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	client, conn := dbtest.OpenClient(t)
	logg := logger.Nop()
	cfg := &config.Config{
		App:       config.AppConfig{Env: "dev"},
		JWT:       config.JWTConfig{Secret: "secret", Issuer: "storefront"},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"*"}},
		Orders:    config.OrdersConfig{DefaultCurrency: "USD", DefaultShipping: decimal.Zero},
		RateLimit: config.RateLimitConfig{LowStockEventsLimit: 100, LowStockEventsWindow: time.Minute},
	}

	reg := prometheus.NewRegistry()
	domainMetrics := metrics.NewDomainMetrics(reg)
	products := product.NewRepository(conn)

	monitor, err := lowstock.NewMonitor(lowstock.MonitorParams{
		Alerts:   lowstock.NewGormRepository(conn),
		Products: products,
		Logger:   logg,
		Metrics:  domainMetrics,
		Defaults: lowstock.Thresholds{Low: 2, Near: 5},
	})
	require.NoError(t, err)

	oracle, err := pricing.NewOracle(products)
	require.NoError(t, err)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)
	ordersRepo := orders.NewRepository(conn)

	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:          ordersRepo,
		Tx:            client,
		Oracle:        oracle,
		Outbox:        outboxSvc,
		StockObserver: monitor,
		Logger:        logg,
		Metrics:       domainMetrics,
	})
	require.NoError(t, err)

	returnsSvc, err := returns.NewService(returns.ServiceParams{
		Repo:     returns.NewRepository(conn),
		Orders:   ordersRepo,
		Products: products,
		Tx:       client,
		Outbox:   outboxSvc,
		Logger:   logg,
		Metrics:  domainMetrics,
	})
	require.NoError(t, err)

	revenueSvc, err := revenue.NewService(revenue.NewRepository(conn), logg, enums.CurrencyUSD)
	require.NoError(t, err)

	handler := NewRouter(cfg, logg, client, nil, metrics.NewHTTPMetrics(reg), promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), Services{
		Orders:   ordersSvc,
		Returns:  returnsSvc,
		LowStock: monitor,
		Revenue:  revenueSvc,
	})
	return &testServer{handler: handler, conn: conn, cfg: cfg}
}

func (s *testServer) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	s.handler.ServeHTTP(resp, req)
	return resp
}

func (s *testServer) token(t *testing.T, role enums.Role) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(s.cfg.JWT, time.Now(), time.Hour, pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Email:  string(role) + "@example.com",
		Role:   role,
	})
	require.NoError(t, err)
	return token
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	live := srv.do(t, http.MethodGet, "/health/live", "", "")
	assert.Equal(t, http.StatusOK, live.Code)
	assert.NotEmpty(t, live.Header().Get("X-Request-Id"))

	ready := srv.do(t, http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusOK, ready.Code)

	scrape := srv.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, scrape.Code)
	assert.Contains(t, scrape.Body.String(), "storefront_http_request_duration_seconds")
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	srv := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodGet, "/api/admin/v1/orders", "", "").Code)
	assert.Equal(t, http.StatusForbidden, srv.do(t, http.MethodGet, "/api/admin/v1/orders", "", srv.token(t, enums.RoleCustomer)).Code)
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/api/admin/v1/orders", "", srv.token(t, enums.RoleAdmin)).Code)
}

func TestCustomerRoutesRejectGuests(t *testing.T) {
	srv := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodGet, "/api/v1/me/orders", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodGet, "/api/v1/orders/"+uuid.NewString(), "", "").Code)
}

func TestGuestCheckoutFeedsLowStockAndRevenue(t *testing.T) {
	srv := newTestServer(t)
	mug := dbtest.SeedProduct(t, srv.conn, "blue-mug", "12.50", 3)

	body := `{"items":[{"product_id":"` + mug.ID.String() + `","quantity":2,"price":0.01}],` +
		`"shipping_info":{"name":"Ada Lovelace","phone":"+1 555 0100"}}`
	created := srv.do(t, http.MethodPost, "/api/v1/orders", body, "")
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())

	var order struct {
		Data orders.OrderDTO `json:"data"`
	}
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &order))
	assert.True(t, order.Data.Totals.Total.Equal(decimal.RequireFromString("25.00")))
	assert.Equal(t, enums.OrderStatusProcessing, order.Data.Status)
	assert.Equal(t, 1, dbtest.StockOf(t, srv.conn, mug.ID))

	// checkout left 1 unit, which the monitor already recorded
	repeat := srv.do(t, http.MethodPost, "/api/v1/low-stock/events", `{"product_id":"`+mug.ID.String()+`","stock":1}`, "")
	assert.Equal(t, http.StatusNoContent, repeat.Code)

	alerts := srv.do(t, http.MethodGet, "/api/v1/low-stock/alerts", "", "")
	require.Equal(t, http.StatusOK, alerts.Code)
	var page struct {
		Data lowstock.AlertsPage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(alerts.Body.Bytes(), &page))
	require.Len(t, page.Data.Alerts, 1)
	assert.Equal(t, 1, page.Data.Alerts[0].Stock)
	assert.Equal(t, 1, page.Data.Stats.Low)

	report := srv.do(t, http.MethodGet, "/api/admin/v1/revenue?mode=gross", "", srv.token(t, enums.RoleAdmin))
	require.Equal(t, http.StatusOK, report.Code)
	var revenueBody struct {
		Data revenue.Report `json:"data"`
	}
	require.NoError(t, json.Unmarshal(report.Body.Bytes(), &revenueBody))
	assert.True(t, revenueBody.Data.Gross.Equal(decimal.RequireFromString("25.00")))
	assert.Equal(t, 1, revenueBody.Data.OrderCount)
}

func TestInsufficientStockReturnsConflict(t *testing.T) {
	srv := newTestServer(t)
	mug := dbtest.SeedProduct(t, srv.conn, "blue-mug", "12.50", 1)

	body := `{"items":[{"product_id":"` + mug.ID.String() + `","quantity":5}],` +
		`"shipping_info":{"name":"Ada Lovelace","phone":"+1 555 0100"}}`
	resp := srv.do(t, http.MethodPost, "/api/v1/orders", body, "")
	require.Equal(t, http.StatusConflict, resp.Code)

	var payload struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.Equal(t, "CONFLICT", payload.Error.Code)
	assert.Equal(t, float64(1), payload.Error.Details["available"])
	assert.Equal(t, 1, dbtest.StockOf(t, srv.conn, mug.ID))
}
