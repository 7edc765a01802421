package payloads

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderLine is the compact item shape carried in order events.
type OrderLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderCreatedEvent is emitted once an order and its stock decrements commit.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID       `json:"order_id"`
	UserID        *uuid.UUID      `json:"user_id,omitempty"`
	CustomerEmail string          `json:"customer_email,omitempty"`
	Total         decimal.Decimal `json:"total"`
	Currency      enums.Currency  `json:"currency"`
	Items         []OrderLine     `json:"items"`
}

// OrderStatusChangedEvent is emitted when an admin advances or annotates an order.
type OrderStatusChangedEvent struct {
	OrderID        uuid.UUID         `json:"order_id"`
	PreviousStatus enums.OrderStatus `json:"previous_status"`
	Status         enums.OrderStatus `json:"status"`
	TrackingNumber *string           `json:"tracking_number,omitempty"`
	Provider       *string           `json:"provider,omitempty"`
	Note           *string           `json:"note,omitempty"`
}

// OrderCanceledEvent is emitted when an order is cancelled and restocked.
type OrderCanceledEvent struct {
	OrderID        uuid.UUID         `json:"order_id"`
	PreviousStatus enums.OrderStatus `json:"previous_status"`
	Restocked      []OrderLine       `json:"restocked"`
	CanceledAt     time.Time         `json:"canceled_at"`
}

// ReturnRequestedEvent is emitted when a customer or admin opens a return.
type ReturnRequestedEvent struct {
	ReturnID uuid.UUID `json:"return_id"`
	OrderID  uuid.UUID `json:"order_id"`
	Reason   *string   `json:"reason,omitempty"`
}

// ReturnDecidedEvent is emitted when an admin approves or rejects a return.
type ReturnDecidedEvent struct {
	ReturnID uuid.UUID          `json:"return_id"`
	OrderID  uuid.UUID          `json:"order_id"`
	Status   enums.ReturnStatus `json:"status"`
	Note     *string            `json:"note,omitempty"`
}

// ReturnRefundedEvent is emitted once a refund has been recorded.
type ReturnRefundedEvent struct {
	ReturnID     uuid.UUID       `json:"return_id"`
	OrderID      uuid.UUID       `json:"order_id"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	Currency     enums.Currency  `json:"currency"`
}
