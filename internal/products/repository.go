package product

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxNearToFinish bounds the near-to-finish listing.
const MaxNearToFinish = 200

// Repository is the read side of the catalog that order and stock flows depend on.
// Catalog CRUD lives in the merchandising service.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	FindBySlugs(ctx context.Context, slugs []string) ([]models.Product, error)
	ListNearToFinish(ctx context.Context, low, near, limit int) ([]models.Product, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}
	var rows []models.Product
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error
	return rows, err
}

func (r *repository) FindBySlugs(ctx context.Context, slugs []string) ([]models.Product, error) {
	if len(slugs) == 0 {
		return []models.Product{}, nil
	}
	var rows []models.Product
	err := r.db.WithContext(ctx).Where("slug IN ?", slugs).Find(&rows).Error
	return rows, err
}

// ListNearToFinish returns products with low < stock <= near, lowest stock first.
func (r *repository) ListNearToFinish(ctx context.Context, low, near, limit int) ([]models.Product, error) {
	if near <= low {
		return []models.Product{}, nil
	}
	if limit <= 0 || limit > MaxNearToFinish {
		limit = MaxNearToFinish
	}
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Where("stock > ? AND stock <= ?", low, near).
		Order("stock ASC").
		Order("slug ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// IndexByID keys products by id.
func IndexByID(rows []models.Product) map[uuid.UUID]models.Product {
	out := make(map[uuid.UUID]models.Product, len(rows))
	for _, row := range rows {
		out[row.ID] = row
	}
	return out
}
