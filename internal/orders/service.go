package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const cancelNote = "Order cancelled"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StockObserver receives product stock levels after they change.
type StockObserver interface {
	ObserveStock(ctx context.Context, productID uuid.UUID, slug string, stock int)
}

// Service drives order creation and status transitions.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*models.Order, error)
	ListOrders(ctx context.Context, input ListOrdersInput) ([]models.Order, error)
	ListMyOrders(ctx context.Context, actor auth.Actor) ([]models.Order, error)
	AdvanceStatus(ctx context.Context, input AdvanceStatusInput) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*models.Order, error)
}

// ServiceParams groups the collaborators of the order service.
type ServiceParams struct {
	Repo            Repository
	Tx              txRunner
	Oracle          pricing.Oracle
	Ledger          inventory.Ledger
	Outbox          outboxPublisher
	StockObserver   StockObserver
	Logger          *logger.Logger
	Metrics         *metrics.DomainMetrics
	DefaultCurrency enums.Currency
	Now             func() time.Time
}

type service struct {
	repo            Repository
	tx              txRunner
	oracle          pricing.Oracle
	ledger          inventory.Ledger
	outbox          outboxPublisher
	observer        StockObserver
	logg            *logger.Logger
	metrics         *metrics.DomainMetrics
	defaultCurrency enums.Currency
	now             func() time.Time
}

// NewService builds the order lifecycle service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Oracle == nil {
		return nil, fmt.Errorf("pricing oracle required")
	}
	if params.Ledger == nil {
		params.Ledger = inventory.NewLedger()
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.DefaultCurrency == "" {
		params.DefaultCurrency = enums.CurrencyUSD
	}
	if !params.DefaultCurrency.IsValid() {
		return nil, fmt.Errorf("invalid default currency %q", params.DefaultCurrency)
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		repo:            params.Repo,
		tx:              params.Tx,
		oracle:          params.Oracle,
		ledger:          params.Ledger,
		outbox:          params.Outbox,
		observer:        params.StockObserver,
		logg:            params.Logger,
		metrics:         params.Metrics,
		defaultCurrency: params.DefaultCurrency,
		now:             params.Now,
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	order, err := s.createOrder(ctx, input)
	if err != nil {
		s.metrics.OrderRejected(string(errorCode(err)))
		return nil, err
	}
	s.metrics.OrderCreated(order.Currency.String())
	return order, nil
}

func (s *service) createOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	lines, err := mergeItems(input.Items)
	if err != nil {
		return nil, err
	}
	if missing := input.ShippingInfo.Missing(); len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping info incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	method := enums.PaymentMethodCash
	if raw := strings.TrimSpace(input.PaymentMethod); raw != "" {
		parsed, err := enums.ParsePaymentMethod(strings.ToLower(raw))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method")
		}
		method = parsed
	}
	currency := s.defaultCurrency
	if raw := strings.TrimSpace(input.Currency); raw != "" {
		parsed, err := enums.ParseCurrency(strings.ToUpper(raw))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency")
		}
		currency = parsed
	}
	if input.Shipping.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping must not be negative")
	}

	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	quotes, err := s.oracle.Quote(ctx, nil, ids)
	if err != nil {
		return nil, err
	}

	// every line must be coverable before any decrement is attempted
	for _, line := range lines {
		quote := quotes[line.ProductID]
		if line.Qty > quote.Stock {
			return nil, inventory.InsufficientStock(line.ProductID, line.Qty, quote.Stock)
		}
	}

	now := s.now().UTC()
	order := &models.Order{
		ID:            uuid.New(),
		UserID:        input.Actor.UserRef(),
		CustomerEmail: customerEmail(input),
		ShippingInfo:  input.ShippingInfo,
		Shipping:      input.Shipping.Round(2),
		Currency:      currency,
		PaymentMethod: method,
		PaymentStatus: enums.PaymentStatusPending,
		Status:        enums.OrderStatusProcessing,
		History:       []models.OrderHistoryEntry{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	subtotal := decimal.Zero
	eventLines := make([]payloads.OrderLine, 0, len(lines))
	for _, line := range lines {
		quote := quotes[line.ProductID]
		item := models.OrderLineItem{
			ID:        uuid.New(),
			OrderID:   order.ID,
			ProductID: quote.ProductID,
			Name:      quote.Name,
			UnitPrice: quote.UnitPrice,
			Qty:       line.Qty,
			ImageURL:  quote.ImageURL,
			CreatedAt: now,
		}
		order.Items = append(order.Items, item)
		subtotal = subtotal.Add(item.LineTotal())
		eventLines = append(eventLines, payloads.OrderLine{
			ProductID: item.ProductID,
			Quantity:  item.Qty,
			UnitPrice: item.UnitPrice,
		})
	}
	order.Subtotal = subtotal
	order.Total = subtotal.Add(order.Shipping)

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order")
		}
		if err := s.ledger.Decrement(ctx, tx, lines); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.ActorFrom(input.Actor),
			OccurredAt:    now,
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				UserID:        order.UserID,
				CustomerEmail: order.CustomerEmail,
				Total:         order.Total,
				Currency:      order.Currency,
				Items:         eventLines,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Ensure(err, "create order")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"total":    order.Total.StringFixed(2),
		"items":    len(order.Items),
	})
	s.logg.Info(logCtx, "order created")
	s.observeStock(ctx, ids)
	return order, nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*models.Order, error) {
	if !actor.IsAuthenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !order.OwnedBy(actor.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	return order, nil
}

func (s *service) ListOrders(ctx context.Context, input ListOrdersInput) ([]models.Order, error) {
	if err := requireAdmin(input.Actor); err != nil {
		return nil, err
	}
	rows, err := s.repo.List(ctx, ListFilter{Status: input.Status, Cursor: input.Cursor, Limit: input.Limit})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return rows, nil
}

func (s *service) ListMyOrders(ctx context.Context, actor auth.Actor) ([]models.Order, error) {
	if !actor.IsAuthenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	rows, err := s.repo.List(ctx, ListFilter{UserID: actor.UserRef()})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return rows, nil
}

func (s *service) AdvanceStatus(ctx context.Context, input AdvanceStatusInput) (*models.Order, error) {
	if err := requireAdmin(input.Actor); err != nil {
		return nil, err
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.Status != nil {
		switch *input.Status {
		case enums.OrderStatusProcessing, enums.OrderStatusShipped, enums.OrderStatusDelivered:
		case enums.OrderStatusCancelled:
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "use the cancel operation to cancel an order")
		default:
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "status %q cannot be set directly", *input.Status)
		}
	}
	note := trimmed(input.Note)
	number := trimmed(input.TrackingNumber)
	provider := trimmed(input.Provider)
	if input.Status == nil && note == nil && number == nil && provider == nil {
		return s.load(ctx, s.repo, input.OrderID)
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		previous := order.Status
		if previous == enums.OrderStatusReturnRequested && input.Status != nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order has a return in review; decide the return instead")
		}
		target := previous
		if input.Status != nil {
			target = *input.Status
		}
		if !previous.CanTransitionTo(target) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot move order from %q to %q", previous, target)
		}

		updates := map[string]any{}
		if number != nil {
			updates["tracking_number"] = *number
		}
		if provider != nil {
			updates["tracking_provider"] = *provider
		}
		moved, err := repo.TransitionStatus(ctx, order.ID, previous, target, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order was modified concurrently")
		}
		if err := repo.AppendHistory(ctx, &models.OrderHistoryEntry{
			OrderID:   order.ID,
			Status:    target.String(),
			Note:      note,
			CreatedAt: s.now().UTC(),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.ActorFrom(input.Actor),
			Data: payloads.OrderStatusChangedEvent{
				OrderID:        order.ID,
				PreviousStatus: previous,
				Status:         target,
				TrackingNumber: number,
				Provider:       provider,
				Note:           note,
			},
		}); err != nil {
			return err
		}
		result, err = s.load(ctx, repo, order.ID)
		return err
	})
	if err != nil {
		return nil, pkgerrors.Ensure(err, "advance order")
	}
	if input.Status != nil {
		s.metrics.OrderTransition(result.Status.String())
	}
	return result, nil
}

func (s *service) CancelOrder(ctx context.Context, orderID uuid.UUID, actor auth.Actor) (*models.Order, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var (
		result    *models.Order
		cancelled bool
		restocked []uuid.UUID
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if order.Status == enums.OrderStatusCancelled {
			result = order
			return nil
		}
		previous := order.Status
		if !previous.CanTransitionTo(enums.OrderStatusCancelled) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot cancel order in status %q", previous)
		}

		moved, err := repo.TransitionStatus(ctx, order.ID, previous, enums.OrderStatusCancelled, map[string]any{
			"payment_status": enums.PaymentStatusCancelled,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !moved {
			// lost to a concurrent writer; report whatever state won
			result, err = s.load(ctx, repo, order.ID)
			return err
		}

		lines := make([]inventory.Line, 0, len(order.Items))
		eventLines := make([]payloads.OrderLine, 0, len(order.Items))
		for _, item := range order.Items {
			lines = append(lines, inventory.Line{ProductID: item.ProductID, Qty: item.Qty})
			eventLines = append(eventLines, payloads.OrderLine{
				ProductID: item.ProductID,
				Quantity:  item.Qty,
				UnitPrice: item.UnitPrice,
			})
			restocked = append(restocked, item.ProductID)
		}
		skipped, err := s.ledger.Restock(ctx, tx, lines)
		if err != nil {
			return err
		}
		for _, id := range skipped {
			s.logg.Warn(s.logg.WithField(ctx, "product_id", id.String()), "restock skipped for missing product")
		}

		note := cancelNote
		now := s.now().UTC()
		if previous == enums.OrderStatusReturnRequested {
			closed, err := repo.RejectOpenReturns(ctx, order.ID, note, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close pending return")
			}
			if closed > 0 {
				s.logg.Info(s.logg.WithFields(ctx, map[string]any{
					logger.FieldOrderID: order.ID.String(),
					"returns_closed":    closed,
				}), "pending return closed by cancellation")
			}
		}
		if err := repo.AppendHistory(ctx, &models.OrderHistoryEntry{
			OrderID:   order.ID,
			Status:    enums.OrderStatusCancelled.String(),
			Note:      &note,
			CreatedAt: now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCanceled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.ActorFrom(actor),
			OccurredAt:    now,
			Data: payloads.OrderCanceledEvent{
				OrderID:        order.ID,
				PreviousStatus: previous,
				Restocked:      eventLines,
				CanceledAt:     now,
			},
		}); err != nil {
			return err
		}
		cancelled = true
		result, err = s.load(ctx, repo, order.ID)
		return err
	})
	if err != nil {
		return nil, pkgerrors.Ensure(err, "cancel order")
	}
	if cancelled {
		s.metrics.OrderTransition(enums.OrderStatusCancelled.String())
		s.logg.Info(s.logg.WithField(ctx, logger.FieldOrderID, orderID), "order cancelled")
		s.observeStock(ctx, restocked)
	}
	return result, nil
}

func (s *service) load(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// observeStock reports fresh stock levels for ids. Failures are logged only.
func (s *service) observeStock(ctx context.Context, ids []uuid.UUID) {
	if s.observer == nil || len(ids) == 0 {
		return
	}
	quotes, err := s.oracle.Quote(ctx, nil, ids)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "stock observation skipped")
		return
	}
	for _, id := range ids {
		if quote, ok := quotes[id]; ok {
			s.observer.ObserveStock(ctx, quote.ProductID, quote.Slug, quote.Stock)
		}
	}
}

// mergeItems validates requested lines and folds duplicate products together,
// keeping first-seen order.
func mergeItems(items []ItemInput) ([]inventory.Line, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item")
	}
	index := make(map[uuid.UUID]int, len(items))
	lines := make([]inventory.Line, 0, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"product_id": item.ProductID.String()})
		}
		if pos, ok := index[item.ProductID]; ok {
			lines[pos].Qty += item.Quantity
			continue
		}
		index[item.ProductID] = len(lines)
		lines = append(lines, inventory.Line{ProductID: item.ProductID, Qty: item.Quantity})
	}
	return lines, nil
}

func customerEmail(input CreateOrderInput) string {
	for _, candidate := range []string{input.CustomerEmail, input.ShippingInfo.Email, input.Actor.Email} {
		if v := strings.TrimSpace(candidate); v != "" {
			return v
		}
	}
	return ""
}

func requireAdmin(actor auth.Actor) error {
	if !actor.IsAuthenticated() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if !actor.IsAdmin() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	return nil
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}

func errorCode(err error) pkgerrors.Code {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Code()
	}
	return pkgerrors.CodeInternal
}
