package inventory

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Line is one stock movement request.
type Line struct {
	ProductID uuid.UUID
	Qty       int
}

// Ledger applies stock movements inside the caller's transaction.
type Ledger interface {
	ApplyDelta(ctx context.Context, tx *gorm.DB, productID uuid.UUID, delta int) (bool, error)
	Decrement(ctx context.Context, tx *gorm.DB, lines []Line) error
	Restock(ctx context.Context, tx *gorm.DB, lines []Line) ([]uuid.UUID, error)
}

type ledger struct{}

// NewLedger exposes the SQL-backed stock ledger.
func NewLedger() Ledger {
	return ledger{}
}

// ApplyDelta adds a signed delta to a product's stock in one conditional
// statement. It reports false when the product is missing or the delta would
// take stock below zero; nothing is written in that case.
func (ledger) ApplyDelta(ctx context.Context, tx *gorm.DB, productID uuid.UUID, delta int) (bool, error) {
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock movement")
	}
	res := tx.WithContext(ctx).Exec(`
		UPDATE products
		SET stock = stock + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND stock + ? >= 0
	`, delta, productID, delta)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "apply stock delta")
	}
	return res.RowsAffected > 0, nil
}

// Decrement removes qty from each product. Concurrent checkouts can never drive
// stock below zero; the first line that cannot be covered aborts with a
// conflict and the caller rolls back.
func (l ledger) Decrement(ctx context.Context, tx *gorm.DB, lines []Line) error {
	for _, line := range lines {
		if line.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		applied, err := l.ApplyDelta(ctx, tx, line.ProductID, -line.Qty)
		if err != nil {
			return err
		}
		if !applied {
			left, err := available(ctx, tx, line.ProductID)
			if err != nil {
				return err
			}
			return InsufficientStock(line.ProductID, line.Qty, left)
		}
	}
	return nil
}

// available reads the stock a losing decrement saw; a missing product has none.
func available(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (int, error) {
	var stock []int
	err := tx.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Pluck("stock", &stock).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read stock")
	}
	if len(stock) == 0 {
		return 0, nil
	}
	return stock[0], nil
}

// Restock returns qty to each product. Products that no longer exist are
// skipped and reported back so callers can log them.
func (l ledger) Restock(ctx context.Context, tx *gorm.DB, lines []Line) ([]uuid.UUID, error) {
	skipped := []uuid.UUID{}
	for _, line := range lines {
		if line.Qty <= 0 {
			continue
		}
		applied, err := l.ApplyDelta(ctx, tx, line.ProductID, line.Qty)
		if err != nil {
			return nil, err
		}
		if !applied {
			skipped = append(skipped, line.ProductID)
		}
	}
	return skipped, nil
}

// InsufficientStock is the conflict raised when a line cannot be covered.
func InsufficientStock(productID uuid.UUID, requested, available int) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").
		WithDetails(map[string]any{
			"product_id": productID.String(),
			"requested":  requested,
			"available":  available,
		})
}
