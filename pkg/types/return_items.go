package types

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReturnItem snapshots an order line at the time a return was requested.
type ReturnItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     *string         `json:"image,omitempty"`
}

// ReturnItems is stored as a JSONB array on the return row.
type ReturnItems []ReturnItem

// Total sums price * quantity over the snapshot.
func (r ReturnItems) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range r {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// ProductIDs returns the distinct product ids referenced by the snapshot.
func (r ReturnItems) ProductIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(r))
	ids := make([]uuid.UUID, 0, len(r))
	for _, item := range r {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

// Value serializes the snapshot to JSON.
func (r ReturnItems) Value() (driver.Value, error) {
	if r == nil {
		return jsonValue([]ReturnItem{})
	}
	return jsonValue([]ReturnItem(r))
}

// Scan decodes JSONB into the snapshot.
func (r *ReturnItems) Scan(value any) error {
	if value == nil {
		*r = ReturnItems{}
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	var decoded []ReturnItem
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*r = decoded
	return nil
}
