package revenue

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Query selects the reporting window and mode.
type Query struct {
	From  *time.Time
	To    *time.Time
	Mode  string
	Actor auth.Actor
}

// OrderRow is the drill-down line for one counted order.
type OrderRow struct {
	ID            uuid.UUID           `json:"id"`
	CreatedAt     time.Time           `json:"created_at"`
	Total         decimal.Decimal     `json:"total"`
	Currency      enums.Currency      `json:"currency"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
}

// Report is the revenue summary. Refunds and Net are only set in net mode.
type Report struct {
	Mode       enums.RevenueMode `json:"mode"`
	From       *time.Time        `json:"from,omitempty"`
	To         *time.Time        `json:"to,omitempty"`
	Currency   enums.Currency    `json:"currency"`
	Gross      decimal.Decimal   `json:"gross"`
	Refunds    *decimal.Decimal  `json:"refunds,omitempty"`
	Net        *decimal.Decimal  `json:"net,omitempty"`
	OrderCount int               `json:"order_count"`
	Orders     []OrderRow        `json:"orders"`
}

type Service interface {
	GetRevenue(ctx context.Context, query Query) (*Report, error)
}

type service struct {
	repo            Repository
	logg            *logger.Logger
	defaultCurrency enums.Currency
}

// NewService builds the revenue aggregator.
func NewService(repo Repository, logg *logger.Logger, defaultCurrency enums.Currency) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("revenue repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	if defaultCurrency == "" {
		defaultCurrency = enums.CurrencyUSD
	}
	return &service{repo: repo, logg: logg, defaultCurrency: defaultCurrency}, nil
}

func (s *service) GetRevenue(ctx context.Context, query Query) (*Report, error) {
	if !query.Actor.IsAuthenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if !query.Actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	mode, err := enums.ParseRevenueMode(query.Mode)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "mode must be gross or net")
	}
	if query.From != nil && query.To != nil && query.From.After(*query.To) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from must not be after to")
	}
	window := Window{From: query.From, To: query.To}

	orders, err := s.repo.CountableOrders(ctx, window, MaxRevenueOrders)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load revenue orders")
	}

	report := &Report{
		Mode:       mode,
		From:       query.From,
		To:         query.To,
		Currency:   s.defaultCurrency,
		Gross:      decimal.Zero,
		OrderCount: len(orders),
		Orders:     make([]OrderRow, 0, len(orders)),
	}
	ids := make([]uuid.UUID, 0, len(orders))
	for i, o := range orders {
		if i == 0 && o.Currency != "" {
			report.Currency = o.Currency
		}
		report.Gross = report.Gross.Add(o.Total)
		ids = append(ids, o.ID)
		report.Orders = append(report.Orders, OrderRow{
			ID:            o.ID,
			CreatedAt:     o.CreatedAt,
			Total:         o.Total,
			Currency:      o.Currency,
			Status:        o.Status,
			PaymentStatus: o.PaymentStatus,
		})
	}

	if mode == enums.RevenueModeNet {
		returns, err := s.repo.RefundedReturns(ctx, ids, window)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refunded returns")
		}
		refunds := decimal.Zero
		for _, r := range returns {
			refunds = refunds.Add(r.RefundAmount)
		}
		net := report.Gross.Sub(refunds)
		report.Refunds = &refunds
		report.Net = &net
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"mode": string(mode), "orders": report.OrderCount})
	s.logg.Debug(logCtx, "revenue computed")
	return report, nil
}
