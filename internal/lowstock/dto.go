package lowstock

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/google/uuid"
)

// ListAlertsInput pages through the deduplicated alert list.
type ListAlertsInput struct {
	Limit      int
	Skip       int
	Thresholds Thresholds
}

// AlertView is the newest alert for a product with its live stock when known.
type AlertView struct {
	ID            uuid.UUID  `json:"id"`
	ProductID     *uuid.UUID `json:"product_id,omitempty"`
	Slug          *string    `json:"slug,omitempty"`
	Name          string     `json:"name,omitempty"`
	Stock         int        `json:"stock"`
	RecordedStock int        `json:"recorded_stock"`
	Live          bool       `json:"live"`
	At            time.Time  `json:"at"`
}

// NearView is a product inside the near-to-finish band.
type NearView struct {
	ProductID uuid.UUID `json:"product_id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Stock     int       `json:"stock"`
}

// Stats summarizes the alert page.
type Stats struct {
	OutOfStock   int `json:"out_of_stock"`
	Low          int `json:"low"`
	NearToFinish int `json:"near_to_finish"`
}

// AlertsPage is the dashboard response.
type AlertsPage struct {
	Alerts       []AlertView `json:"alerts"`
	NearToFinish []NearView  `json:"near_to_finish"`
	Stats        Stats       `json:"stats"`
	Thresholds   Thresholds  `json:"thresholds"`
	Total        int         `json:"total"`
	Limit        int         `json:"limit"`
	Skip         int         `json:"skip"`
}

func toAlertView(row models.LowStockAlert, live *models.Product) AlertView {
	view := AlertView{
		ID:            row.ID,
		ProductID:     row.ProductID,
		Slug:          row.Slug,
		Stock:         row.Stock,
		RecordedStock: row.Stock,
		At:            row.At,
	}
	if live != nil {
		view.Live = true
		view.Stock = live.Stock
		view.Name = live.Name
		if view.Slug == nil {
			slug := live.Slug
			view.Slug = &slug
		}
		if view.ProductID == nil {
			id := live.ID
			view.ProductID = &id
		}
	}
	return view
}

func toNearViews(rows []models.Product) []NearView {
	out := make([]NearView, 0, len(rows))
	for _, p := range rows {
		out = append(out, NearView{ProductID: p.ID, Slug: p.Slug, Name: p.Name, Stock: p.Stock})
	}
	return out
}
