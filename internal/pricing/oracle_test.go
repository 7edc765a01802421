package pricing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func TestTrustedPrice(t *testing.T) {
	d := func(v string) *decimal.Decimal {
		x := decimal.RequireFromString(v)
		return &x
	}
	tests := []struct {
		name string
		sale *decimal.Decimal
		want string
	}{
		{name: "no sale", sale: nil, want: "100"},
		{name: "lower sale", sale: d("80"), want: "80"},
		{name: "equal sale ignored", sale: d("100"), want: "100"},
		{name: "higher sale ignored", sale: d("120"), want: "100"},
		{name: "zero sale ignored", sale: d("0"), want: "100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrustedPrice(models.Product{Price: decimal.NewFromInt(100), SalePrice: tt.sale})
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestQuoteResolvesBatch(t *testing.T) {
	conn := dbtest.Open(t)
	tee := dbtest.SeedProduct(t, conn, "tee", "25", 7, dbtest.WithSalePrice("19.99"))
	hat := dbtest.SeedProduct(t, conn, "hat", "12", 1)

	o, err := NewOracle(product.NewRepository(conn))
	require.NoError(t, err)

	quotes, err := o.Quote(context.Background(), nil, []uuid.UUID{tee.ID, hat.ID})
	require.NoError(t, err)
	assert.Equal(t, "19.99", quotes[tee.ID].UnitPrice.StringFixed(2))
	assert.Equal(t, 7, quotes[tee.ID].Stock)
	assert.Equal(t, "12.00", quotes[hat.ID].UnitPrice.StringFixed(2))
}

func TestQuoteRejectsUnknownProduct(t *testing.T) {
	conn := dbtest.Open(t)
	tee := dbtest.SeedProduct(t, conn, "tee", "25", 7)
	o, err := NewOracle(product.NewRepository(conn))
	require.NoError(t, err)

	ghost := uuid.New()
	_, err = o.Quote(context.Background(), nil, []uuid.UUID{tee.ID, ghost})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Equal(t, map[string]any{"product_ids": []string{ghost.String()}}, typed.Details())
}
