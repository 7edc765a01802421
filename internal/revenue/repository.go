package revenue

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxRevenueOrders caps the orders considered in one report.
const MaxRevenueOrders = 500

// Window bounds created_at on both ends when set.
type Window struct {
	From *time.Time
	To   *time.Time
}

func (w Window) apply(q *gorm.DB) *gorm.DB {
	if w.From != nil {
		q = q.Where("created_at >= ?", w.From.UTC())
	}
	if w.To != nil {
		q = q.Where("created_at <= ?", w.To.UTC())
	}
	return q
}

// Repository reads the order and return rows revenue is computed from.
type Repository interface {
	// CountableOrders returns orders that are neither cancelled nor payment-cancelled, newest first.
	CountableOrders(ctx context.Context, window Window, limit int) ([]models.Order, error)
	// RefundedReturns returns refunded returns for the given orders inside window.
	RefundedReturns(ctx context.Context, orderIDs []uuid.UUID, window Window) ([]models.Return, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CountableOrders(ctx context.Context, window Window, limit int) ([]models.Order, error) {
	if limit <= 0 || limit > MaxRevenueOrders {
		limit = MaxRevenueOrders
	}
	q := r.db.WithContext(ctx).
		Select("id", "total", "currency", "status", "payment_status", "created_at").
		Where("status <> ?", enums.OrderStatusCancelled).
		Where("payment_status <> ?", enums.PaymentStatusCancelled)
	q = window.apply(q)

	var rows []models.Order
	err := q.Order("created_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *repository) RefundedReturns(ctx context.Context, orderIDs []uuid.UUID, window Window) ([]models.Return, error) {
	if len(orderIDs) == 0 {
		return []models.Return{}, nil
	}
	q := r.db.WithContext(ctx).
		Select("id", "order_id", "refund_amount", "created_at").
		Where("status = ?", enums.ReturnStatusRefunded).
		Where("order_id IN ?", orderIDs)
	q = window.apply(q)

	var rows []models.Return
	err := q.Find(&rows).Error
	return rows, err
}
