package returns

import (
	"time"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemInput selects part of an order line for return.
type ItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// RequestReturnInput opens a return against an order. Empty Items returns every line.
type RequestReturnInput struct {
	OrderID uuid.UUID
	Reason  *string
	Notes   *string
	Items   []ItemInput
	Actor   auth.Actor
}

// DecideReturnInput carries an admin decision.
type DecideReturnInput struct {
	ReturnID uuid.UUID
	Action   string
	Note     *string
	Actor    auth.Actor
}

// MarkRefundedInput records a refund for an approved return. A nil Amount
// refunds the full item snapshot.
type MarkRefundedInput struct {
	ReturnID uuid.UUID
	Amount   *decimal.Decimal
	Note     *string
	Actor    auth.Actor
}

// ListReturnsInput filters the admin listing.
type ListReturnsInput struct {
	Status *enums.ReturnStatus
	Actor  auth.Actor
}

// Outcome pairs a return with the order it reshaped.
type Outcome struct {
	Return *models.Return
	Order  *models.Order
}

// Listed is a return plus a light view of its order. Order is nil when the
// referenced order no longer exists.
type Listed struct {
	Return models.Return
	Order  *models.Order
}

// HistoryEntryDTO is one return history event.
type HistoryEntryDTO struct {
	Status    string    `json:"status"`
	Note      *string   `json:"note,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReturnDTO is the API representation of a return.
type ReturnDTO struct {
	ID           uuid.UUID          `json:"id"`
	OrderID      uuid.UUID          `json:"order_id"`
	UserID       *uuid.UUID         `json:"user_id,omitempty"`
	Reason       *string            `json:"reason,omitempty"`
	Notes        *string            `json:"notes,omitempty"`
	Items        types.ReturnItems  `json:"items"`
	Status       enums.ReturnStatus `json:"status"`
	RefundAmount decimal.Decimal    `json:"refund_amount"`
	DecidedAt    *time.Time         `json:"decided_at,omitempty"`
	RefundedAt   *time.Time         `json:"refunded_at,omitempty"`
	History      []HistoryEntryDTO  `json:"history"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// OrderSummaryDTO is the order context shown next to a return.
type OrderSummaryDTO struct {
	ID            uuid.UUID           `json:"id"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	Total         decimal.Decimal     `json:"total"`
	Currency      enums.Currency      `json:"currency"`
	CustomerEmail string              `json:"customer_email,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// ListedDTO is one row of the admin listing.
type ListedDTO struct {
	ReturnDTO
	Order *OrderSummaryDTO `json:"order,omitempty"`
}

// OutcomeDTO is the response of request, decide and refund.
type OutcomeDTO struct {
	Return ReturnDTO        `json:"return"`
	Order  *orders.OrderDTO `json:"order,omitempty"`
}

// ToDTO maps a persisted return onto its API shape.
func ToDTO(ret *models.Return) ReturnDTO {
	history := make([]HistoryEntryDTO, 0, len(ret.History))
	for _, entry := range ret.History {
		history = append(history, HistoryEntryDTO{Status: entry.Status, Note: entry.Note, Timestamp: entry.CreatedAt})
	}
	items := ret.Items
	if items == nil {
		items = types.ReturnItems{}
	}
	return ReturnDTO{
		ID:           ret.ID,
		OrderID:      ret.OrderID,
		UserID:       ret.UserID,
		Reason:       ret.Reason,
		Notes:        ret.Notes,
		Items:        items,
		Status:       ret.Status,
		RefundAmount: ret.RefundAmount,
		DecidedAt:    ret.DecidedAt,
		RefundedAt:   ret.RefundedAt,
		History:      history,
		CreatedAt:    ret.CreatedAt,
		UpdatedAt:    ret.UpdatedAt,
	}
}

// SummaryDTO reduces an order to the fields shown beside a return.
func SummaryDTO(order *models.Order) *OrderSummaryDTO {
	if order == nil {
		return nil
	}
	return &OrderSummaryDTO{
		ID:            order.ID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		Total:         order.Total,
		Currency:      order.Currency,
		CustomerEmail: order.CustomerEmail,
		CreatedAt:     order.CreatedAt,
	}
}

// ToOutcomeDTO maps a service outcome.
func ToOutcomeDTO(outcome *Outcome) OutcomeDTO {
	dto := OutcomeDTO{Return: ToDTO(outcome.Return)}
	if outcome.Order != nil {
		order := orders.ToDTO(outcome.Order)
		dto.Order = &order
	}
	return dto
}

// ToListedDTOs maps the admin listing.
func ToListedDTOs(rows []Listed) []ListedDTO {
	out := make([]ListedDTO, 0, len(rows))
	for i := range rows {
		out = append(out, ListedDTO{ReturnDTO: ToDTO(&rows[i].Return), Order: SummaryDTO(rows[i].Order)})
	}
	return out
}
