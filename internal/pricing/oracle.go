package pricing

import (
	"context"
	"fmt"

	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Quote is the server-side view of a product at checkout time.
type Quote struct {
	ProductID uuid.UUID
	Slug      string
	Name      string
	UnitPrice decimal.Decimal
	Stock     int
	ImageURL  *string
}

// Oracle resolves trusted prices. Client-supplied prices never reach it.
type Oracle interface {
	Quote(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]Quote, error)
}

type oracle struct {
	products product.Repository
}

// NewOracle builds a price oracle backed by the catalog repository.
func NewOracle(products product.Repository) (Oracle, error) {
	if products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	return &oracle{products: products}, nil
}

// TrustedPrice is the sale price when it is set, positive and below the list price.
func TrustedPrice(p models.Product) decimal.Decimal {
	if p.SalePrice != nil && p.SalePrice.IsPositive() && p.SalePrice.LessThan(p.Price) {
		return *p.SalePrice
	}
	return p.Price
}

// Quote looks every id up in one batch. Unknown ids fail validation with the
// offending ids listed in the error details.
func (o *oracle) Quote(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]Quote, error) {
	rows, err := o.products.WithTx(tx).FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}

	quotes := make(map[uuid.UUID]Quote, len(rows))
	for _, row := range rows {
		quotes[row.ID] = Quote{
			ProductID: row.ID,
			Slug:      row.Slug,
			Name:      row.Name,
			UnitPrice: TrustedPrice(row),
			Stock:     row.Stock,
			ImageURL:  row.ImageURL,
		}
	}

	missing := []string{}
	for _, id := range ids {
		if _, ok := quotes[id]; !ok {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown product").
			WithDetails(map[string]any{"product_ids": missing})
	}
	return quotes, nil
}
