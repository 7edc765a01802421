package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type stubOrdersService struct {
	create  func(ctx context.Context, input internalorders.CreateOrderInput) (*models.Order, error)
	get     func(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*models.Order, error)
	list    func(ctx context.Context, input internalorders.ListOrdersInput) ([]models.Order, error)
	mine    func(ctx context.Context, actor auth.Actor) ([]models.Order, error)
	advance func(ctx context.Context, input internalorders.AdvanceStatusInput) (*models.Order, error)
	cancel  func(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*models.Order, error)
}

func (s *stubOrdersService) CreateOrder(ctx context.Context, input internalorders.CreateOrderInput) (*models.Order, error) {
	if s.create != nil {
		return s.create(ctx, input)
	}
	return sampleOrder(), nil
}

func (s *stubOrdersService) GetOrder(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*models.Order, error) {
	if s.get != nil {
		return s.get(ctx, orderID, actor)
	}
	return sampleOrder(), nil
}

func (s *stubOrdersService) ListOrders(ctx context.Context, input internalorders.ListOrdersInput) ([]models.Order, error) {
	if s.list != nil {
		return s.list(ctx, input)
	}
	return nil, nil
}

func (s *stubOrdersService) ListMyOrders(ctx context.Context, actor auth.Actor) ([]models.Order, error) {
	if s.mine != nil {
		return s.mine(ctx, actor)
	}
	return nil, nil
}

func (s *stubOrdersService) AdvanceStatus(ctx context.Context, input internalorders.AdvanceStatusInput) (*models.Order, error) {
	if s.advance != nil {
		return s.advance(ctx, input)
	}
	return sampleOrder(), nil
}

func (s *stubOrdersService) CancelOrder(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*models.Order, error) {
	if s.cancel != nil {
		return s.cancel(ctx, orderID, actor)
	}
	return sampleOrder(), nil
}

func TestCreateIgnoresClientPrices(t *testing.T) {
	productID := uuid.New()
	var captured internalorders.CreateOrderInput
	svc := &stubOrdersService{
		create: func(ctx context.Context, input internalorders.CreateOrderInput) (*models.Order, error) {
			captured = input
			return sampleOrder(), nil
		},
	}

	body := `{"items":[{"product_id":"` + productID.String() + `","quantity":2,"price":0.01}],` +
		`"shipping_info":{"name":"Ada","phone":"555"},"currency":"usd"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	resp := httptest.NewRecorder()
	Create(svc, decimal.RequireFromString("4.99"), nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if len(captured.Items) != 1 || captured.Items[0].ProductID != productID || captured.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items %+v", captured.Items)
	}
	if !captured.Shipping.Equal(decimal.RequireFromString("4.99")) {
		t.Fatalf("expected default shipping, got %s", captured.Shipping)
	}
	if captured.Currency != "USD" {
		t.Fatalf("expected upper-cased currency, got %q", captured.Currency)
	}
	if captured.Actor.IsAuthenticated() {
		t.Fatalf("expected guest actor")
	}
}

func TestCreateRejectsMalformedProductID(t *testing.T) {
	svc := &stubOrdersService{
		create: func(ctx context.Context, input internalorders.CreateOrderInput) (*models.Order, error) {
			t.Fatalf("service should not be called")
			return nil, nil
		},
	}
	body := `{"items":[{"product_id":"nope","quantity":1}],"shipping_info":{"name":"Ada","phone":"555"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	resp := httptest.NewRecorder()
	Create(svc, decimal.Zero, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCreateSurfacesStockConflictDetails(t *testing.T) {
	productID := uuid.New()
	svc := &stubOrdersService{
		create: func(ctx context.Context, input internalorders.CreateOrderInput) (*models.Order, error) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").WithDetails(map[string]any{
				"product_id": productID.String(),
				"requested":  3,
				"available":  1,
			})
		},
	}
	body := `{"items":[{"product_id":"` + productID.String() + `","quantity":3}],"shipping_info":{"name":"Ada","phone":"555"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	resp := httptest.NewRecorder()
	Create(svc, decimal.Zero, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	var payload struct {
		Error struct {
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Error.Details["available"] != float64(1) {
		t.Fatalf("expected available detail, got %+v", payload.Error.Details)
	}
}

func TestDetailPassesActor(t *testing.T) {
	orderID := uuid.New()
	actor := auth.Actor{UserID: uuid.New(), Role: enums.RoleCustomer}
	svc := &stubOrdersService{
		get: func(ctx context.Context, id uuid.UUID, got auth.Actor) (*models.Order, error) {
			if id != orderID {
				t.Fatalf("unexpected order id %s", id)
			}
			if got.UserID != actor.UserID {
				t.Fatalf("expected actor to be forwarded")
			}
			order := sampleOrder()
			order.ID = orderID
			return order, nil
		},
	}

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+orderID.String(), nil), "orderId", orderID.String())
	req = req.WithContext(middleware.WithActor(req.Context(), actor))
	resp := httptest.NewRecorder()
	Detail(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var payload struct {
		Data internalorders.OrderDTO `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Data.ID != orderID {
		t.Fatalf("unexpected order in response")
	}
}

func TestDetailRejectsBadID(t *testing.T) {
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/orders/x", nil), "orderId", "x")
	resp := httptest.NewRecorder()
	Detail(&stubOrdersService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminListParsesStatus(t *testing.T) {
	var captured internalorders.ListOrdersInput
	svc := &stubOrdersService{
		list: func(ctx context.Context, input internalorders.ListOrdersInput) ([]models.Order, error) {
			captured = input
			return []models.Order{*sampleOrder()}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders?status=return_requested", nil)
	resp := httptest.NewRecorder()
	AdminList(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.Status == nil || *captured.Status != enums.OrderStatusReturnRequested {
		t.Fatalf("unexpected status filter %v", captured.Status)
	}

	bad := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders?status=lost", nil)
	resp = httptest.NewRecorder()
	AdminList(svc, nil).ServeHTTP(resp, bad)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", resp.Code)
	}
}

func TestAdminListPagesWithCursor(t *testing.T) {
	rows := []models.Order{*sampleOrder(), *sampleOrder()}
	var captured internalorders.ListOrdersInput
	svc := &stubOrdersService{
		list: func(ctx context.Context, input internalorders.ListOrdersInput) ([]models.Order, error) {
			captured = input
			return rows, nil
		},
	}

	cursor := pagination.Cursor{CreatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), ID: uuid.New()}
	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders?limit=2&cursor="+cursor.Encode(), nil)
	resp := httptest.NewRecorder()
	AdminList(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.Limit != 2 || captured.Cursor == nil || captured.Cursor.ID != cursor.ID {
		t.Fatalf("unexpected list input %+v", captured)
	}
	next, err := pagination.ParseCursor(resp.Header().Get(pagination.HeaderNextCursor))
	if err != nil || next == nil {
		t.Fatalf("expected next cursor header, err=%v", err)
	}
	if next.ID != rows[1].ID {
		t.Fatalf("next cursor should point at last row")
	}

	bad := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders?cursor=%25%25", nil)
	resp = httptest.NewRecorder()
	AdminList(svc, nil).ServeHTTP(resp, bad)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad cursor, got %d", resp.Code)
	}
}

func TestAdvanceBuildsInput(t *testing.T) {
	orderID := uuid.New()
	var captured internalorders.AdvanceStatusInput
	svc := &stubOrdersService{
		advance: func(ctx context.Context, input internalorders.AdvanceStatusInput) (*models.Order, error) {
			captured = input
			return sampleOrder(), nil
		},
	}

	body := `{"status":"shipped","tracking_number":" 1Z999 ","provider":"ups","note":"  left the warehouse  "}`
	req := withURLParam(httptest.NewRequest(http.MethodPatch, "/api/admin/v1/orders/"+orderID.String(), strings.NewReader(body)), "orderId", orderID.String())
	resp := httptest.NewRecorder()
	Advance(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.Status == nil || *captured.Status != enums.OrderStatusShipped {
		t.Fatalf("unexpected status %v", captured.Status)
	}
	if captured.TrackingNumber == nil || *captured.TrackingNumber != "1Z999" {
		t.Fatalf("expected trimmed tracking number")
	}
	if captured.Note == nil || *captured.Note != "left the warehouse" {
		t.Fatalf("expected sanitized note")
	}
}

func TestAdvanceRejectsUnknownStatus(t *testing.T) {
	orderID := uuid.New()
	req := withURLParam(httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"status":"teleported"}`)), "orderId", orderID.String())
	resp := httptest.NewRecorder()
	Advance(&stubOrdersService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCancelMapsStateConflict(t *testing.T) {
	orderID := uuid.New()
	svc := &stubOrdersService{
		cancel: func(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.Order, error) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order already returned")
		},
	}
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/", nil), "orderId", orderID.String())
	resp := httptest.NewRecorder()
	Cancel(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestListMineForwardsActor(t *testing.T) {
	actor := auth.Actor{UserID: uuid.New(), Role: enums.RoleCustomer}
	svc := &stubOrdersService{
		mine: func(ctx context.Context, got auth.Actor) ([]models.Order, error) {
			if got.UserID != actor.UserID {
				t.Fatalf("expected caller to be forwarded")
			}
			return []models.Order{*sampleOrder(), *sampleOrder()}, nil
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/orders", nil)
	req = req.WithContext(middleware.WithActor(req.Context(), actor))
	resp := httptest.NewRecorder()
	ListMine(svc, nil).ServeHTTP(resp, req)

	var payload struct {
		Data []internalorders.OrderDTO `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Data) != 2 {
		t.Fatalf("expected 2 orders got %d", len(payload.Data))
	}
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func sampleOrder() *models.Order {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &models.Order{
		ID:            uuid.New(),
		Subtotal:      decimal.RequireFromString("20.00"),
		Shipping:      decimal.Zero,
		Total:         decimal.RequireFromString("20.00"),
		Currency:      enums.CurrencyUSD,
		PaymentMethod: enums.PaymentMethodCash,
		PaymentStatus: enums.PaymentStatusPending,
		Status:        enums.OrderStatusProcessing,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
