package returns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const refundHistoryNote = "Refund issued"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service runs the return review workflow and projects it onto orders.
type Service interface {
	RequestReturn(ctx context.Context, input RequestReturnInput) (*Outcome, error)
	DecideReturn(ctx context.Context, input DecideReturnInput) (*Outcome, error)
	MarkRefunded(ctx context.Context, input MarkRefundedInput) (*Outcome, error)
	ListReturns(ctx context.Context, input ListReturnsInput) ([]Listed, error)
	GetReturn(ctx context.Context, returnID uuid.UUID) (*Outcome, error)
}

// ServiceParams groups the collaborators of the return service.
type ServiceParams struct {
	Repo     Repository
	Orders   orders.Repository
	Products product.Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Logger   *logger.Logger
	Metrics  *metrics.DomainMetrics
	Now      func() time.Time
}

type service struct {
	repo     Repository
	orders   orders.Repository
	products product.Repository
	tx       txRunner
	outbox   outboxPublisher
	logg     *logger.Logger
	metrics  *metrics.DomainMetrics
	now      func() time.Time
}

// NewService builds the return workflow service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("returns repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		repo:     params.Repo,
		orders:   params.Orders,
		products: params.Products,
		tx:       params.Tx,
		outbox:   params.Outbox,
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      params.Now,
	}, nil
}

func (s *service) RequestReturn(ctx context.Context, input RequestReturnInput) (*Outcome, error) {
	if !input.Actor.IsAuthenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	reason := trimmed(input.Reason)
	notes := trimmed(input.Notes)
	note := composeNote(reason, notes)

	var outcome *Outcome
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orders.WithTx(tx)
		order, err := loadOrder(ctx, orderRepo, input.OrderID)
		if err != nil {
			return err
		}
		if !input.Actor.IsAdmin() && !order.OwnedBy(input.Actor.UserID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
		}
		if order.Status == enums.OrderStatusReturnRequested {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "a return is already in review for this order")
		}
		if !order.Status.CanTransitionTo(enums.OrderStatusReturnRequested) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order in status %q cannot be returned", order.Status)
		}

		prior, err := s.repo.WithTx(tx).ListByOrder(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load earlier returns")
		}
		items, err := snapshotItems(order, input.Items, returnedQuantities(prior))
		if err != nil {
			return err
		}
		if err := s.fillImages(ctx, tx, items); err != nil {
			return err
		}

		moved, err := orderRepo.TransitionStatus(ctx, order.ID, order.Status, enums.OrderStatusReturnRequested, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order was modified concurrently")
		}
		now := s.now().UTC()
		if err := orderRepo.AppendHistory(ctx, &models.OrderHistoryEntry{
			OrderID:   order.ID,
			Status:    enums.OrderStatusReturnRequested.String(),
			Note:      note,
			CreatedAt: now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
		}

		ret := &models.Return{
			ID:           uuid.New(),
			OrderID:      order.ID,
			UserID:       input.Actor.UserRef(),
			Reason:       reason,
			Notes:        notes,
			Items:        items,
			Status:       enums.ReturnStatusRequested,
			RefundAmount: decimal.Zero,
			CreatedAt:    now,
			UpdatedAt:    now,
			History: []models.ReturnHistoryEntry{{
				Status:    enums.ReturnStatusRequested.String(),
				Note:      note,
				CreatedAt: now,
			}},
		}
		if err := s.repo.WithTx(tx).Create(ctx, ret); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist return")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReturnRequested,
			AggregateType: enums.AggregateReturn,
			AggregateID:   ret.ID,
			Actor:         outbox.ActorFrom(input.Actor),
			OccurredAt:    now,
			Data: payloads.ReturnRequestedEvent{
				ReturnID: ret.ID,
				OrderID:  order.ID,
				Reason:   reason,
			},
		}); err != nil {
			return err
		}

		outcome, err = s.reload(ctx, tx, ret.ID, order.ID)
		return err
	})
	if err != nil {
		return nil, pkgerrors.Ensure(err, "request return")
	}
	s.metrics.ReturnTransition(enums.ReturnStatusRequested.String())
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":  input.OrderID.String(),
		"return_id": outcome.Return.ID.String(),
	}), "return requested")
	return outcome, nil
}

func (s *service) DecideReturn(ctx context.Context, input DecideReturnInput) (*Outcome, error) {
	if err := requireAdmin(input.Actor); err != nil {
		return nil, err
	}
	decision, err := enums.ParseReturnDecision(strings.ToLower(strings.TrimSpace(input.Action)))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "action must be approve or reject")
	}
	if input.ReturnID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return id required")
	}
	note := trimmed(input.Note)
	target := decision.Status()

	var outcome *Outcome
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ret, err := loadReturn(ctx, repo, input.ReturnID)
		if err != nil {
			return err
		}
		if ret.Status != enums.ReturnStatusRequested {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "return already %s", ret.Status)
		}
		orderRepo := s.orders.WithTx(tx)
		order, err := loadOrder(ctx, orderRepo, ret.OrderID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		moved, err := repo.TransitionStatus(ctx, ret.ID, enums.ReturnStatusRequested, target, map[string]any{"decided_at": now})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update return status")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "return was decided concurrently")
		}
		if err := repo.AppendHistory(ctx, &models.ReturnHistoryEntry{
			ReturnID:  ret.ID,
			Status:    target.String(),
			Note:      note,
			CreatedAt: now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append return history")
		}

		// the order leaves review either way; only the return keeps the verdict
		if order.Status == enums.OrderStatusReturnRequested {
			moved, err := orderRepo.TransitionStatus(ctx, order.ID, enums.OrderStatusReturnRequested, enums.OrderStatusDelivered, nil)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
			}
			if !moved {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order was modified concurrently")
			}
		}
		if err := orderRepo.AppendHistory(ctx, &models.OrderHistoryEntry{
			OrderID:   order.ID,
			Status:    decision.HistoryLabel(),
			Note:      note,
			CreatedAt: now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReturnDecided,
			AggregateType: enums.AggregateReturn,
			AggregateID:   ret.ID,
			Actor:         outbox.ActorFrom(input.Actor),
			OccurredAt:    now,
			Data: payloads.ReturnDecidedEvent{
				ReturnID: ret.ID,
				OrderID:  order.ID,
				Status:   target,
				Note:     note,
			},
		}); err != nil {
			return err
		}

		outcome, err = s.reload(ctx, tx, ret.ID, order.ID)
		return err
	})
	if err != nil {
		return nil, pkgerrors.Ensure(err, "decide return")
	}
	s.metrics.ReturnTransition(target.String())
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"return_id": input.ReturnID.String(),
		"decision":  string(decision),
	}), "return decided")
	return outcome, nil
}

func (s *service) MarkRefunded(ctx context.Context, input MarkRefundedInput) (*Outcome, error) {
	if err := requireAdmin(input.Actor); err != nil {
		return nil, err
	}
	if input.ReturnID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return id required")
	}
	note := trimmed(input.Note)

	var outcome *Outcome
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ret, err := loadReturn(ctx, repo, input.ReturnID)
		if err != nil {
			return err
		}
		if ret.Status != enums.ReturnStatusApproved {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "only approved returns can be refunded, return is %s", ret.Status)
		}
		orderRepo := s.orders.WithTx(tx)
		order, err := loadOrder(ctx, orderRepo, ret.OrderID)
		if err != nil {
			return err
		}

		amount := ret.Items.Total()
		if input.Amount != nil {
			amount = *input.Amount
		}
		amount = amount.Round(2)
		if !amount.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
		}
		prior, err := repo.ListByOrder(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load earlier returns")
		}
		refunded := refundedTotal(prior, ret.ID)
		if refunded.Add(amount).GreaterThan(order.Total) {
			return pkgerrors.New(pkgerrors.CodeValidation, "refund amount exceeds order total").
				WithDetails(map[string]any{
					"order_total":      order.Total.StringFixed(2),
					"already_refunded": refunded.StringFixed(2),
				})
		}

		now := s.now().UTC()
		moved, err := repo.TransitionStatus(ctx, ret.ID, enums.ReturnStatusApproved, enums.ReturnStatusRefunded, map[string]any{
			"refund_amount": amount,
			"refunded_at":   now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update return status")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "return was refunded concurrently")
		}
		if err := repo.AppendHistory(ctx, &models.ReturnHistoryEntry{
			ReturnID:  ret.ID,
			Status:    enums.ReturnStatusRefunded.String(),
			Note:      note,
			CreatedAt: now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append return history")
		}

		if order.Status.CanTransitionTo(enums.OrderStatusReturned) {
			moved, err := orderRepo.TransitionStatus(ctx, order.ID, order.Status, enums.OrderStatusReturned, nil)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
			}
			if !moved {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "order was modified concurrently")
			}
			historyNote := refundHistoryNote
			if err := orderRepo.AppendHistory(ctx, &models.OrderHistoryEntry{
				OrderID:   order.ID,
				Status:    enums.OrderStatusReturned.String(),
				Note:      &historyNote,
				CreatedAt: now,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
			}
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReturnRefunded,
			AggregateType: enums.AggregateReturn,
			AggregateID:   ret.ID,
			Actor:         outbox.ActorFrom(input.Actor),
			OccurredAt:    now,
			Data: payloads.ReturnRefundedEvent{
				ReturnID:     ret.ID,
				OrderID:      order.ID,
				RefundAmount: amount,
				Currency:     order.Currency,
			},
		}); err != nil {
			return err
		}

		outcome, err = s.reload(ctx, tx, ret.ID, order.ID)
		return err
	})
	if err != nil {
		return nil, pkgerrors.Ensure(err, "refund return")
	}
	s.metrics.ReturnTransition(enums.ReturnStatusRefunded.String())
	s.logg.Info(s.logg.WithField(ctx, "return_id", input.ReturnID.String()), "return refunded")
	return outcome, nil
}

func (s *service) ListReturns(ctx context.Context, input ListReturnsInput) ([]Listed, error) {
	if err := requireAdmin(input.Actor); err != nil {
		return nil, err
	}
	rows, err := s.repo.List(ctx, input.Status, MaxListReturns)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list returns")
	}
	seen := make(map[uuid.UUID]struct{}, len(rows))
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.OrderID]; ok {
			continue
		}
		seen[row.OrderID] = struct{}{}
		ids = append(ids, row.OrderID)
	}
	found, err := s.orders.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load orders")
	}
	byID := make(map[uuid.UUID]*models.Order, len(found))
	for i := range found {
		byID[found[i].ID] = &found[i]
	}
	out := make([]Listed, 0, len(rows))
	for _, row := range rows {
		out = append(out, Listed{Return: row, Order: byID[row.OrderID]})
	}
	return out, nil
}

func (s *service) GetReturn(ctx context.Context, returnID uuid.UUID) (*Outcome, error) {
	if returnID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return id required")
	}
	ret, err := loadReturn(ctx, s.repo, returnID)
	if err != nil {
		return nil, err
	}
	if err := s.fillImages(ctx, nil, ret.Items); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "return_id", returnID.String()), "return image enrichment skipped")
	}
	outcome := &Outcome{Return: ret}
	order, err := s.orders.FindByID(ctx, ret.OrderID)
	switch {
	case err == nil:
		outcome.Order = order
	case db.IsNotFound(err):
		s.logg.Warn(s.logg.WithField(ctx, logger.FieldOrderID, ret.OrderID), "return references a missing order")
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return outcome, nil
}

// fillImages sets missing snapshot images from the catalog in one lookup.
func (s *service) fillImages(ctx context.Context, tx *gorm.DB, items types.ReturnItems) error {
	ids := []uuid.UUID{}
	for _, item := range items {
		if item.Image == nil || *item.Image == "" {
			ids = append(ids, item.ProductID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	rows, err := s.products.WithTx(tx).FindByIDs(ctx, ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product images")
	}
	index := product.IndexByID(rows)
	for i := range items {
		if items[i].Image != nil && *items[i].Image != "" {
			continue
		}
		if p, ok := index[items[i].ProductID]; ok && p.ImageURL != nil {
			image := *p.ImageURL
			items[i].Image = &image
		}
	}
	return nil
}

func (s *service) reload(ctx context.Context, tx *gorm.DB, returnID, orderID uuid.UUID) (*Outcome, error) {
	ret, err := loadReturn(ctx, s.repo.WithTx(tx), returnID)
	if err != nil {
		return nil, err
	}
	order, err := loadOrder(ctx, s.orders.WithTx(tx), orderID)
	if err != nil {
		return nil, err
	}
	return &Outcome{Return: ret, Order: order}, nil
}

// snapshotItems copies the selected order lines into a return snapshot.
// Quantities already held by earlier returns are not returnable again.
func snapshotItems(order *models.Order, selected []ItemInput, returned map[uuid.UUID]int) (types.ReturnItems, error) {
	lines := make(map[uuid.UUID]models.OrderLineItem, len(order.Items))
	for _, item := range order.Items {
		lines[item.ProductID] = item
	}
	if len(selected) == 0 {
		out := make(types.ReturnItems, 0, len(order.Items))
		for _, item := range order.Items {
			if left := item.Qty - returned[item.ProductID]; left > 0 {
				out = append(out, snapshot(item, left))
			}
		}
		if len(out) == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "every item on the order has already been returned")
		}
		return out, nil
	}
	out := make(types.ReturnItems, 0, len(selected))
	requested := make(map[uuid.UUID]int, len(selected))
	for _, sel := range selected {
		line, ok := lines[sel.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not part of the order").
				WithDetails(map[string]any{"product_id": sel.ProductID.String()})
		}
		if sel.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		requested[sel.ProductID] += sel.Quantity
		if left := line.Qty - returned[sel.ProductID]; requested[sel.ProductID] > left {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "return quantity exceeds ordered quantity").
				WithDetails(map[string]any{
					"product_id": sel.ProductID.String(),
					"ordered":    line.Qty,
					"returnable": max(left, 0),
				})
		}
	}
	for _, item := range order.Items {
		if qty, ok := requested[item.ProductID]; ok {
			out = append(out, snapshot(item, qty))
		}
	}
	return out, nil
}

// returnedQuantities sums item quantities per product over returns that
// were not rejected.
func returnedQuantities(rows []models.Return) map[uuid.UUID]int {
	out := make(map[uuid.UUID]int)
	for _, row := range rows {
		if row.Status == enums.ReturnStatusRejected {
			continue
		}
		for _, item := range row.Items {
			out[item.ProductID] += item.Quantity
		}
	}
	return out
}

func refundedTotal(rows []models.Return, exclude uuid.UUID) decimal.Decimal {
	total := decimal.Zero
	for _, row := range rows {
		if row.ID == exclude || row.Status != enums.ReturnStatusRefunded {
			continue
		}
		total = total.Add(row.RefundAmount)
	}
	return total
}

func snapshot(item models.OrderLineItem, qty int) types.ReturnItem {
	return types.ReturnItem{
		ProductID: item.ProductID,
		Name:      item.Name,
		Price:     item.UnitPrice,
		Quantity:  qty,
		Image:     item.ImageURL,
	}
}

func composeNote(reason, notes *string) *string {
	parts := []string{}
	if reason != nil {
		parts = append(parts, "Reason: "+*reason)
	}
	if notes != nil {
		parts = append(parts, "Notes: "+*notes)
	}
	if len(parts) == 0 {
		return nil
	}
	note := strings.Join(parts, " | ")
	return &note
}

func loadOrder(ctx context.Context, repo orders.Repository, id uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func loadReturn(ctx context.Context, repo Repository, id uuid.UUID) (*models.Return, error) {
	ret, err := repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load return")
	}
	return ret, nil
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
