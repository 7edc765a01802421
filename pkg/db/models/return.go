package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Return is a request to reverse part or all of a shipped order.
type Return struct {
	ID           uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID      uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index"`
	UserID       *uuid.UUID           `gorm:"column:user_id;type:uuid"`
	Reason       *string              `gorm:"column:reason"`
	Notes        *string              `gorm:"column:notes"`
	Items        types.ReturnItems    `gorm:"column:items;type:jsonb;not null"`
	Status       enums.ReturnStatus   `gorm:"column:status;type:text;not null;default:'requested'"`
	RefundAmount decimal.Decimal      `gorm:"column:refund_amount;type:numeric(12,2);not null;default:0"`
	DecidedAt    *time.Time           `gorm:"column:decided_at"`
	RefundedAt   *time.Time           `gorm:"column:refunded_at"`
	History      []ReturnHistoryEntry `gorm:"foreignKey:ReturnID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (Return) TableName() string { return "order_returns" }

// ReturnHistoryEntry is one append-only event on a return.
type ReturnHistoryEntry struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReturnID  uuid.UUID `gorm:"column:return_id;type:uuid;not null;index"`
	Status    string    `gorm:"column:status;not null"`
	Note      *string   `gorm:"column:note"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}
