package models

import (
	"time"

	"github.com/google/uuid"
)

// LowStockAlert records an observed stock level at or below the alert threshold.
type LowStockAlert struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID *uuid.UUID `gorm:"column:product_id;type:uuid;index"`
	Slug      *string    `gorm:"column:slug;index"`
	Stock     int        `gorm:"column:stock;not null"`
	At        time.Time  `gorm:"column:at;not null;index"`
}

// Key identifies the product an alert refers to, preferring the id over the slug.
func (a LowStockAlert) Key() string {
	if a.ProductID != nil && *a.ProductID != uuid.Nil {
		return "id:" + a.ProductID.String()
	}
	if a.Slug != nil && *a.Slug != "" {
		return "slug:" + *a.Slug
	}
	return ""
}
