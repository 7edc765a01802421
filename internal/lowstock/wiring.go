package lowstock

import (
	"gorm.io/gorm"

	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

// NewMonitorFromConfig picks the alert store and optional webhook forwarder
// from cfg. The db store is fronted by the in-memory buffer so an outage
// degrades instead of failing requests.
func NewMonitorFromConfig(cfg config.LowStockConfig, conn *gorm.DB, products product.Repository, logg *logger.Logger, m *metrics.DomainMetrics) (Monitor, error) {
	buffer := NewMemoryRepository(cfg.MemoryCapacity)
	alerts := buffer
	if !cfg.UsesMemory() {
		alerts = NewFallbackRepository(NewGormRepository(conn), buffer, logg, m)
	}

	var forwarder Forwarder
	if cfg.WebhookURL != "" {
		wh, err := NewWebhookForwarder(cfg.WebhookURL,
			WithTimeout(cfg.WebhookTimeout),
			WithLogger(logg),
			WithMetrics(m),
		)
		if err != nil {
			return nil, err
		}
		forwarder = wh
	}

	return NewMonitor(MonitorParams{
		Alerts:      alerts,
		Products:    products,
		Forwarder:   forwarder,
		Logger:      logg,
		Metrics:     m,
		Defaults:    Thresholds{Low: cfg.LowThreshold, Near: cfg.NearThreshold},
		DedupWindow: cfg.DedupWindow,
	})
}
