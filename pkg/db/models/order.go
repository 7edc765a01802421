package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Order is a customer purchase with embedded totals, payment state and tracking.
type Order struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           *uuid.UUID          `gorm:"column:user_id;type:uuid"`
	CustomerEmail    string              `gorm:"column:customer_email;not null;default:''"`
	ShippingInfo     types.ShippingInfo  `gorm:"column:shipping_info;type:jsonb;not null"`
	Subtotal         decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Shipping         decimal.Decimal     `gorm:"column:shipping;type:numeric(12,2);not null"`
	Total            decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	Currency         enums.Currency      `gorm:"column:currency;type:text;not null;default:'USD'"`
	PaymentMethod    enums.PaymentMethod `gorm:"column:payment_method;type:text;not null;default:'cash'"`
	PaymentStatus    enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	Status           enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'processing'"`
	TrackingNumber   *string             `gorm:"column:tracking_number"`
	TrackingProvider *string             `gorm:"column:tracking_provider"`
	Items            []OrderLineItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	History          []OrderHistoryEntry `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// OwnedBy reports whether the order was placed by userID.
func (o *Order) OwnedBy(userID uuid.UUID) bool {
	return o != nil && o.UserID != nil && userID != uuid.Nil && *o.UserID == userID
}

// OrderHistoryEntry is one append-only tracking event on an order.
type OrderHistoryEntry struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	Status    string    `gorm:"column:status;not null"`
	Note      *string   `gorm:"column:note"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}
