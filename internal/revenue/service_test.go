package revenue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

var day0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func admin() auth.Actor {
	return auth.Actor{UserID: uuid.New(), Role: enums.RoleAdmin}
}

func seedOrder(t *testing.T, conn *gorm.DB, total string, currency enums.Currency, status enums.OrderStatus, payment enums.PaymentStatus, createdAt time.Time) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:            uuid.New(),
		ShippingInfo:  types.ShippingInfo{Name: "Ada", Phone: "555"},
		Subtotal:      decimal.RequireFromString(total),
		Shipping:      decimal.Zero,
		Total:         decimal.RequireFromString(total),
		Currency:      currency,
		PaymentMethod: enums.PaymentMethodCash,
		PaymentStatus: payment,
		Status:        status,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	require.NoError(t, conn.Omit(clause.Associations).Create(order).Error)
	return order
}

func seedReturn(t *testing.T, conn *gorm.DB, orderID uuid.UUID, status enums.ReturnStatus, amount string, createdAt time.Time) {
	t.Helper()
	ret := &models.Return{
		ID:           uuid.New(),
		OrderID:      orderID,
		Items:        types.ReturnItems{},
		Status:       status,
		RefundAmount: decimal.RequireFromString(amount),
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
	require.NoError(t, conn.Omit(clause.Associations).Create(ret).Error)
}

func newService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(conn), nil, "")
	require.NoError(t, err)
	return svc
}

func TestGetRevenueGrossExcludesCancelled(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newService(t, conn)

	newest := seedOrder(t, conn, "40.00", enums.CurrencyEUR, enums.OrderStatusDelivered, enums.PaymentStatusPaid, day0.Add(2*time.Hour))
	seedOrder(t, conn, "25.50", enums.CurrencyUSD, enums.OrderStatusProcessing, enums.PaymentStatusPending, day0.Add(time.Hour))
	seedOrder(t, conn, "99.00", enums.CurrencyUSD, enums.OrderStatusCancelled, enums.PaymentStatusCancelled, day0)
	seedOrder(t, conn, "11.00", enums.CurrencyUSD, enums.OrderStatusProcessing, enums.PaymentStatusCancelled, day0)

	report, err := svc.GetRevenue(context.Background(), Query{Actor: admin()})
	require.NoError(t, err)
	assert.Equal(t, enums.RevenueModeGross, report.Mode)
	assert.True(t, decimal.RequireFromString("65.50").Equal(report.Gross), report.Gross.String())
	assert.Equal(t, 2, report.OrderCount)
	assert.Equal(t, enums.CurrencyEUR, report.Currency)
	require.Len(t, report.Orders, 2)
	assert.Equal(t, newest.ID, report.Orders[0].ID)
	assert.Nil(t, report.Net)
	assert.Nil(t, report.Refunds)
}

func TestGetRevenueNetSubtractsRefundedReturnsOnly(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newService(t, conn)

	a := seedOrder(t, conn, "100.00", enums.CurrencyUSD, enums.OrderStatusReturned, enums.PaymentStatusPaid, day0)
	b := seedOrder(t, conn, "50.00", enums.CurrencyUSD, enums.OrderStatusDelivered, enums.PaymentStatusPaid, day0.Add(time.Hour))
	cancelled := seedOrder(t, conn, "70.00", enums.CurrencyUSD, enums.OrderStatusCancelled, enums.PaymentStatusCancelled, day0)

	seedReturn(t, conn, a.ID, enums.ReturnStatusRefunded, "30.00", day0.Add(3*time.Hour))
	seedReturn(t, conn, b.ID, enums.ReturnStatusApproved, "50.00", day0.Add(3*time.Hour))
	seedReturn(t, conn, cancelled.ID, enums.ReturnStatusRefunded, "70.00", day0.Add(3*time.Hour))

	report, err := svc.GetRevenue(context.Background(), Query{Mode: "net", Actor: admin()})
	require.NoError(t, err)
	require.NotNil(t, report.Net)
	require.NotNil(t, report.Refunds)
	assert.True(t, decimal.RequireFromString("150.00").Equal(report.Gross))
	assert.True(t, decimal.RequireFromString("30.00").Equal(*report.Refunds))
	assert.True(t, report.Gross.Sub(*report.Refunds).Equal(*report.Net))
}

func TestGetRevenueWindowBoundsOrdersAndRefunds(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newService(t, conn)

	inside := seedOrder(t, conn, "20.00", enums.CurrencyUSD, enums.OrderStatusDelivered, enums.PaymentStatusPaid, day0.Add(24*time.Hour))
	seedOrder(t, conn, "80.00", enums.CurrencyUSD, enums.OrderStatusDelivered, enums.PaymentStatusPaid, day0.Add(-24*time.Hour))
	seedReturn(t, conn, inside.ID, enums.ReturnStatusRefunded, "5.00", day0.Add(30*time.Hour))
	seedReturn(t, conn, inside.ID, enums.ReturnStatusRefunded, "7.00", day0.Add(10*24*time.Hour))

	from := day0
	to := day0.Add(48 * time.Hour)
	report, err := svc.GetRevenue(context.Background(), Query{From: &from, To: &to, Mode: "net", Actor: admin()})
	require.NoError(t, err)
	assert.Equal(t, 1, report.OrderCount)
	assert.True(t, decimal.RequireFromString("20.00").Equal(report.Gross))
	assert.True(t, decimal.RequireFromString("5.00").Equal(*report.Refunds))
	assert.True(t, decimal.RequireFromString("15.00").Equal(*report.Net))
}

func TestGetRevenueEmptyDefaultsCurrency(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newService(t, conn)

	report, err := svc.GetRevenue(context.Background(), Query{Mode: "net", Actor: admin()})
	require.NoError(t, err)
	assert.Equal(t, enums.CurrencyUSD, report.Currency)
	assert.True(t, report.Gross.IsZero())
	assert.True(t, report.Net.IsZero())
	assert.Empty(t, report.Orders)
}

func TestGetRevenueValidation(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newService(t, conn)
	from := day0.Add(time.Hour)
	to := day0

	_, err := svc.GetRevenue(context.Background(), Query{Mode: "weekly", Actor: admin()})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.GetRevenue(context.Background(), Query{From: &from, To: &to, Actor: admin()})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.GetRevenue(context.Background(), Query{Actor: auth.Guest()})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	_, err = svc.GetRevenue(context.Background(), Query{Actor: auth.Actor{UserID: uuid.New(), Role: enums.RoleCustomer}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}
