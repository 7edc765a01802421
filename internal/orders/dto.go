package orders

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemInput is one requested product and quantity. Prices are never accepted.
type ItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// CreateOrderInput carries a checkout request.
type CreateOrderInput struct {
	Items         []ItemInput
	ShippingInfo  types.ShippingInfo
	PaymentMethod string
	Shipping      decimal.Decimal
	Currency      string
	CustomerEmail string
	Actor         auth.Actor
}

// AdvanceStatusInput carries an admin status change or tracking annotation.
type AdvanceStatusInput struct {
	OrderID        uuid.UUID
	Status         *enums.OrderStatus
	TrackingNumber *string
	Provider       *string
	Note           *string
	Actor          auth.Actor
}

// ListOrdersInput filters the admin order listing.
type ListOrdersInput struct {
	Status *enums.OrderStatus
	Cursor *pagination.Cursor
	Limit  int
	Actor  auth.Actor
}

// LineItemDTO is the public shape of an order line.
type LineItemDTO struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     *string         `json:"image,omitempty"`
}

// TotalsDTO groups the server-computed money fields.
type TotalsDTO struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
	Currency enums.Currency  `json:"currency"`
}

// PaymentDTO is the payment sub-state embedded in an order.
type PaymentDTO struct {
	Method enums.PaymentMethod `json:"method"`
	Status enums.PaymentStatus `json:"status"`
}

// HistoryEntryDTO is one tracking event.
type HistoryEntryDTO struct {
	Status    string    `json:"status"`
	Note      *string   `json:"note,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TrackingDTO carries the carrier reference and the append-only history.
type TrackingDTO struct {
	Number   *string           `json:"number,omitempty"`
	Provider *string           `json:"provider,omitempty"`
	History  []HistoryEntryDTO `json:"history"`
}

// OrderDTO is the API representation of an order.
type OrderDTO struct {
	ID            uuid.UUID          `json:"id"`
	UserID        *uuid.UUID         `json:"user_id,omitempty"`
	CustomerEmail string             `json:"customer_email,omitempty"`
	ShippingInfo  types.ShippingInfo `json:"shipping_info"`
	Items         []LineItemDTO      `json:"items"`
	Totals        TotalsDTO          `json:"totals"`
	Payment       PaymentDTO         `json:"payment"`
	Status        enums.OrderStatus  `json:"status"`
	Tracking      TrackingDTO        `json:"tracking"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// ToDTO maps a persisted order onto its API shape.
func ToDTO(order *models.Order) OrderDTO {
	items := make([]LineItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, LineItemDTO{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.UnitPrice,
			Quantity:  item.Qty,
			Image:     item.ImageURL,
		})
	}
	history := make([]HistoryEntryDTO, 0, len(order.History))
	for _, entry := range order.History {
		history = append(history, HistoryEntryDTO{
			Status:    entry.Status,
			Note:      entry.Note,
			Timestamp: entry.CreatedAt,
		})
	}
	return OrderDTO{
		ID:            order.ID,
		UserID:        order.UserID,
		CustomerEmail: order.CustomerEmail,
		ShippingInfo:  order.ShippingInfo,
		Items:         items,
		Totals: TotalsDTO{
			Subtotal: order.Subtotal,
			Shipping: order.Shipping,
			Total:    order.Total,
			Currency: order.Currency,
		},
		Payment: PaymentDTO{
			Method: order.PaymentMethod,
			Status: order.PaymentStatus,
		},
		Status: order.Status,
		Tracking: TrackingDTO{
			Number:   order.TrackingNumber,
			Provider: order.TrackingProvider,
			History:  history,
		},
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
	}
}

// ToDTOs maps a slice of orders.
func ToDTOs(rows []models.Order) []OrderDTO {
	out := make([]OrderDTO, 0, len(rows))
	for i := range rows {
		out = append(out, ToDTO(&rows[i]))
	}
	return out
}
