package orders

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaxListOrders caps every order listing.
const MaxListOrders = 200

// ListFilter narrows an order listing.
type ListFilter struct {
	Status *enums.OrderStatus
	UserID *uuid.UUID
	Cursor *pagination.Cursor
	Limit  int
}

// Repository defines persistence operations for orders and their history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Order, error)
	List(ctx context.Context, filter ListFilter) ([]models.Order, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error)
	RejectOpenReturns(ctx context.Context, orderID uuid.UUID, note string, at time.Time) (int, error)
	AppendHistory(ctx context.Context, entry *models.OrderHistoryEntry) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateOrder inserts the order row and its line items. History is left empty.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error; err != nil {
		return err
	}
	if len(order.Items) == 0 {
		return nil
	}
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).Create(&order.Items).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.withDetails(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByIDs loads bare order rows without items or history.
func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Order, error) {
	if len(ids) == 0 {
		return []models.Order{}, nil
	}
	var rows []models.Order
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error
	return rows, err
}

// List returns orders newest first, capped at MaxListOrders.
func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Order, error) {
	limit := filter.Limit
	if limit <= 0 || limit > MaxListOrders {
		limit = MaxListOrders
	}
	q := r.withDetails(ctx)
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	q = pagination.After(q, filter.Cursor)
	var rows []models.Order
	err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// TransitionStatus moves the order from one status to another only if it is
// still in the expected state. The bool is false when another writer got there first.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error) {
	values := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RejectOpenReturns closes every return still awaiting review for the order
// and records the note on each. It reports how many were closed.
func (r *repository) RejectOpenReturns(ctx context.Context, orderID uuid.UUID, note string, at time.Time) (int, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Return{}).
		Where("order_id = ? AND status = ?", orderID, enums.ReturnStatusRequested).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	err = r.db.WithContext(ctx).
		Model(&models.Return{}).
		Where("id IN ? AND status = ?", ids, enums.ReturnStatusRequested).
		Updates(map[string]any{
			"status":     enums.ReturnStatusRejected,
			"decided_at": at,
			"updated_at": at,
		}).Error
	if err != nil {
		return 0, err
	}
	entries := make([]models.ReturnHistoryEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, models.ReturnHistoryEntry{
			ID:        uuid.New(),
			ReturnID:  id,
			Status:    enums.ReturnStatusRejected.String(),
			Note:      &note,
			CreatedAt: at,
		})
	}
	if err := r.db.WithContext(ctx).Create(&entries).Error; err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (r *repository) AppendHistory(ctx context.Context, entry *models.OrderHistoryEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) withDetails(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("id ASC")
		}).
		Preload("History", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		})
}
