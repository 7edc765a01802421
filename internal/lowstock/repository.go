package lowstock

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AlertKey identifies the product an alert belongs to. ProductID wins over Slug.
type AlertKey struct {
	ProductID *uuid.UUID
	Slug      *string
}

// Valid reports whether at least one identifier is present.
func (k AlertKey) Valid() bool {
	return (k.ProductID != nil && *k.ProductID != uuid.Nil) || (k.Slug != nil && *k.Slug != "")
}

func (k AlertKey) matches(alert models.LowStockAlert) bool {
	if k.ProductID != nil && *k.ProductID != uuid.Nil {
		return alert.ProductID != nil && *alert.ProductID == *k.ProductID
	}
	return k.Slug != nil && alert.Slug != nil && *alert.Slug == *k.Slug
}

// AlertRepository stores low-stock alerts.
type AlertRepository interface {
	// Latest returns the newest alert for key, or nil when none exists.
	Latest(ctx context.Context, key AlertKey) (*models.LowStockAlert, error)
	Insert(ctx context.Context, alert *models.LowStockAlert) error
	// Recent returns up to limit alerts, newest first.
	Recent(ctx context.Context, limit int) ([]models.LowStockAlert, error)
	// DeleteForKeys removes every alert referencing one of the ids or slugs.
	DeleteForKeys(ctx context.Context, productIDs []uuid.UUID, slugs []string) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewGormRepository stores alerts in the low_stock_alerts table.
func NewGormRepository(db *gorm.DB) AlertRepository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Latest(ctx context.Context, key AlertKey) (*models.LowStockAlert, error) {
	q := r.db.WithContext(ctx)
	if key.ProductID != nil && *key.ProductID != uuid.Nil {
		q = q.Where("product_id = ?", *key.ProductID)
	} else if key.Slug != nil {
		q = q.Where("slug = ?", *key.Slug)
	} else {
		return nil, nil
	}
	var rows []models.LowStockAlert
	if err := q.Order("at DESC").Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *gormRepository) Insert(ctx context.Context, alert *models.LowStockAlert) error {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(alert).Error
}

func (r *gormRepository) Recent(ctx context.Context, limit int) ([]models.LowStockAlert, error) {
	var rows []models.LowStockAlert
	err := r.db.WithContext(ctx).Order("at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *gormRepository) DeleteForKeys(ctx context.Context, productIDs []uuid.UUID, slugs []string) (int64, error) {
	if len(productIDs) == 0 && len(slugs) == 0 {
		return 0, nil
	}
	q := r.db.WithContext(ctx)
	switch {
	case len(productIDs) > 0 && len(slugs) > 0:
		q = q.Where("product_id IN ? OR slug IN ?", productIDs, slugs)
	case len(productIDs) > 0:
		q = q.Where("product_id IN ?", productIDs)
	default:
		q = q.Where("slug IN ?", slugs)
	}
	res := q.Delete(&models.LowStockAlert{})
	return res.RowsAffected, res.Error
}
