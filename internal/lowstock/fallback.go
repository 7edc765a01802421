package lowstock

import (
	"context"
	"sort"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/google/uuid"
)

// fallbackRepository serves from primary and degrades to the in-memory buffer
// whenever primary errors. Alerts written during an outage stay visible
// through the buffer until the process restarts.
type fallbackRepository struct {
	primary  AlertRepository
	fallback AlertRepository
	logg     *logger.Logger
	metrics  *metrics.DomainMetrics
}

// NewFallbackRepository wraps a durable repository with a best-effort buffer.
func NewFallbackRepository(primary, fallback AlertRepository, logg *logger.Logger, m *metrics.DomainMetrics) AlertRepository {
	if logg == nil {
		logg = logger.Nop()
	}
	return &fallbackRepository{primary: primary, fallback: fallback, logg: logg, metrics: m}
}

func (f *fallbackRepository) Latest(ctx context.Context, key AlertKey) (*models.LowStockAlert, error) {
	buffered, _ := f.fallback.Latest(ctx, key)
	stored, err := f.primary.Latest(ctx, key)
	if err != nil {
		f.degrade(ctx, "latest", err)
		return buffered, nil
	}
	if stored == nil || (buffered != nil && buffered.At.After(stored.At)) {
		return buffered, nil
	}
	return stored, nil
}

func (f *fallbackRepository) Insert(ctx context.Context, alert *models.LowStockAlert) error {
	if err := f.primary.Insert(ctx, alert); err != nil {
		f.degrade(ctx, "insert", err)
		return f.fallback.Insert(ctx, alert)
	}
	return nil
}

func (f *fallbackRepository) Recent(ctx context.Context, limit int) ([]models.LowStockAlert, error) {
	buffered, _ := f.fallback.Recent(ctx, limit)
	stored, err := f.primary.Recent(ctx, limit)
	if err != nil {
		f.degrade(ctx, "recent", err)
		return buffered, nil
	}
	if len(buffered) == 0 {
		return stored, nil
	}
	merged := append(stored, buffered...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].At.After(merged[j].At) })
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func (f *fallbackRepository) DeleteForKeys(ctx context.Context, productIDs []uuid.UUID, slugs []string) (int64, error) {
	removed, _ := f.fallback.DeleteForKeys(ctx, productIDs, slugs)
	stored, err := f.primary.DeleteForKeys(ctx, productIDs, slugs)
	if err != nil {
		f.degrade(ctx, "delete", err)
		return removed, nil
	}
	return removed + stored, nil
}

func (f *fallbackRepository) degrade(ctx context.Context, op string, err error) {
	f.metrics.StockEvent(metrics.StockEventDegraded)
	logCtx := f.logg.WithFields(ctx, map[string]any{"op": op, "error": err.Error()})
	f.logg.Warn(logCtx, "low stock store unavailable, using in-memory alerts")
}
