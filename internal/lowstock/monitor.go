package lowstock

import (
	"context"
	"strings"
	"time"

	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/google/uuid"
)

const (
	DefaultDedupWindow = 6 * time.Hour
	DefaultListLimit   = 50
	MaxListLimit       = 200

	supersetFactor = 5
	supersetFloor  = 500
	supersetCap    = 2000
)

// Outcome describes what happened to a stock event.
type Outcome string

const (
	OutcomeIgnored    Outcome = metrics.StockEventIgnored
	OutcomeSuppressed Outcome = metrics.StockEventSuppressed
	OutcomeRecorded   Outcome = metrics.StockEventRecorded
)

// Thresholds bound the low and near-to-finish bands. Low <= Near.
type Thresholds struct {
	Low  int `json:"low"`
	Near int `json:"near"`
}

// StockEvent is an observed stock level for a product identified by id or slug.
type StockEvent struct {
	ProductID *uuid.UUID
	Slug      *string
	Stock     int
}

func (e StockEvent) key() AlertKey {
	return AlertKey{ProductID: e.ProductID, Slug: e.Slug}
}

// RecordResult reports the outcome of a stock event and the alert written, if any.
type RecordResult struct {
	Outcome Outcome
	Alert   *models.LowStockAlert
}

// Recorded reports whether an alert was persisted.
func (r RecordResult) Recorded() bool {
	return r.Outcome == OutcomeRecorded
}

// Monitor records low-stock observations and serves the alert dashboard.
type Monitor interface {
	ResolveThresholds(low, near *int) (Thresholds, error)
	RecordStockEvent(ctx context.Context, event StockEvent, thresholds Thresholds) (RecordResult, error)
	ObserveStock(ctx context.Context, productID uuid.UUID, slug string, stock int)
	ListAlerts(ctx context.Context, input ListAlertsInput) (*AlertsPage, error)
	Cleanup(ctx context.Context, low int) (int64, error)
}

// MonitorParams groups the collaborators of the monitor.
type MonitorParams struct {
	Alerts      AlertRepository
	Products    product.Repository
	Forwarder   Forwarder
	Logger      *logger.Logger
	Metrics     *metrics.DomainMetrics
	Defaults    Thresholds
	DedupWindow time.Duration
	Now         func() time.Time
}

type monitor struct {
	alerts      AlertRepository
	products    product.Repository
	forwarder   Forwarder
	logg        *logger.Logger
	metrics     *metrics.DomainMetrics
	defaults    Thresholds
	dedupWindow time.Duration
	now         func() time.Time
}

// NewMonitor validates params and returns a Monitor.
func NewMonitor(params MonitorParams) (Monitor, error) {
	if params.Alerts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "alert repository is required")
	}
	if params.Products == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "product repository is required")
	}
	if params.Defaults.Low < 0 || params.Defaults.Near < params.Defaults.Low {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "default thresholds must satisfy 0 <= low <= near")
	}
	m := &monitor{
		alerts:      params.Alerts,
		products:    params.Products,
		forwarder:   params.Forwarder,
		logg:        params.Logger,
		metrics:     params.Metrics,
		defaults:    params.Defaults,
		dedupWindow: params.DedupWindow,
		now:         params.Now,
	}
	if m.logg == nil {
		m.logg = logger.Nop()
	}
	if m.dedupWindow <= 0 {
		m.dedupWindow = DefaultDedupWindow
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

func (m *monitor) ResolveThresholds(low, near *int) (Thresholds, error) {
	resolved := m.defaults
	if low != nil {
		if *low < 0 {
			return Thresholds{}, pkgerrors.New(pkgerrors.CodeValidation, "low threshold must be >= 0")
		}
		resolved.Low = *low
		if near == nil && resolved.Near < resolved.Low {
			resolved.Near = resolved.Low
		}
	}
	if near != nil {
		if *near < resolved.Low {
			return Thresholds{}, pkgerrors.New(pkgerrors.CodeValidation, "near threshold must be >= low threshold")
		}
		resolved.Near = *near
	}
	return resolved, nil
}

func (m *monitor) RecordStockEvent(ctx context.Context, event StockEvent, thresholds Thresholds) (RecordResult, error) {
	if event.Slug != nil {
		trimmed := strings.TrimSpace(*event.Slug)
		event.Slug = &trimmed
	}
	key := event.key()
	if !key.Valid() {
		return RecordResult{}, pkgerrors.New(pkgerrors.CodeValidation, "product_id or slug is required")
	}
	if event.Stock < 0 {
		return RecordResult{}, pkgerrors.New(pkgerrors.CodeValidation, "stock must be >= 0")
	}

	// recovered keys are cleared by ListAlerts and Cleanup against live stock
	if event.Stock > thresholds.Low {
		m.metrics.StockEvent(metrics.StockEventIgnored)
		return RecordResult{Outcome: OutcomeIgnored}, nil
	}

	now := m.now().UTC()
	alert := &models.LowStockAlert{
		ID:    uuid.New(),
		Stock: event.Stock,
		At:    now,
	}
	if key.ProductID != nil && *key.ProductID != uuid.Nil {
		id := *key.ProductID
		alert.ProductID = &id
	}
	if key.Slug != nil && *key.Slug != "" {
		slug := *key.Slug
		alert.Slug = &slug
	}
	m.forward(ctx, alert, thresholds.Low)

	latest, err := m.alerts.Latest(ctx, key)
	if err != nil {
		return RecordResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest alert")
	}
	if latest != nil && latest.Stock == event.Stock && now.Sub(latest.At) < m.dedupWindow {
		m.metrics.StockEvent(metrics.StockEventSuppressed)
		return RecordResult{Outcome: OutcomeSuppressed}, nil
	}
	if err := m.alerts.Insert(ctx, alert); err != nil {
		return RecordResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist low stock alert")
	}
	m.metrics.StockEvent(metrics.StockEventRecorded)

	logCtx := m.logg.WithFields(ctx, map[string]any{"alert_key": alert.Key(), "stock": alert.Stock})
	m.logg.Info(logCtx, "low stock alert recorded")
	return RecordResult{Outcome: OutcomeRecorded, Alert: alert}, nil
}

// ObserveStock feeds post-checkout stock levels into the monitor. Failures are logged.
func (m *monitor) ObserveStock(ctx context.Context, productID uuid.UUID, slug string, stock int) {
	event := StockEvent{ProductID: &productID, Stock: stock}
	if slug != "" {
		event.Slug = &slug
	}
	if _, err := m.RecordStockEvent(ctx, event, m.defaults); err != nil {
		logCtx := m.logg.WithField(ctx, "product_id", productID.String())
		m.logg.Error(logCtx, "low stock observation failed", err)
	}
}

func (m *monitor) ListAlerts(ctx context.Context, input ListAlertsInput) (*AlertsPage, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	skip := input.Skip
	if skip < 0 {
		skip = 0
	}
	thresholds := input.Thresholds

	superset := (skip + limit) * supersetFactor
	if superset < supersetFloor {
		superset = supersetFloor
	}
	if superset > supersetCap {
		superset = supersetCap
	}

	views, stale, err := m.collapse(ctx, superset, thresholds.Low)
	if err != nil {
		return nil, err
	}
	if len(stale.ids) > 0 || len(stale.slugs) > 0 {
		if _, err := m.alerts.DeleteForKeys(ctx, stale.ids, stale.slugs); err != nil {
			m.logg.Warn(m.logg.WithField(ctx, "error", err.Error()), "stale low stock alert cleanup failed")
		}
	}

	near, err := m.products.ListNearToFinish(ctx, thresholds.Low, thresholds.Near, product.MaxNearToFinish)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list near to finish products")
	}

	page := &AlertsPage{
		Alerts:       paginate(views, skip, limit),
		NearToFinish: toNearViews(near),
		Thresholds:   thresholds,
		Limit:        limit,
		Skip:         skip,
		Total:        len(views),
	}
	for _, view := range views {
		switch {
		case view.Stock == 0:
			page.Stats.OutOfStock++
		case view.Stock <= thresholds.Low:
			page.Stats.Low++
		}
	}
	page.Stats.NearToFinish = len(page.NearToFinish)
	return page, nil
}

// Cleanup deletes alerts whose product's live stock is now above low.
func (m *monitor) Cleanup(ctx context.Context, low int) (int64, error) {
	_, stale, err := m.collapse(ctx, supersetCap, low)
	if err != nil {
		return 0, err
	}
	if len(stale.ids) == 0 && len(stale.slugs) == 0 {
		return 0, nil
	}
	removed, err := m.alerts.DeleteForKeys(ctx, stale.ids, stale.slugs)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete stale low stock alerts")
	}
	return removed, nil
}

type staleKeys struct {
	ids   []uuid.UUID
	slugs []string
}

// collapse loads recent alerts, keeps the newest per key and splits them into
// views still at or below low and keys whose live stock recovered.
func (m *monitor) collapse(ctx context.Context, window, low int) ([]AlertView, staleKeys, error) {
	rows, err := m.alerts.Recent(ctx, window)
	if err != nil {
		return nil, staleKeys{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load recent alerts")
	}

	seen := make(map[string]struct{}, len(rows))
	latest := make([]models.LowStockAlert, 0, len(rows))
	var ids []uuid.UUID
	var slugs []string
	for _, row := range rows {
		key := row.Key()
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		latest = append(latest, row)
		if row.ProductID != nil && *row.ProductID != uuid.Nil {
			ids = append(ids, *row.ProductID)
		} else if row.Slug != nil {
			slugs = append(slugs, *row.Slug)
		}
	}

	byID := map[uuid.UUID]models.Product{}
	if len(ids) > 0 {
		found, err := m.products.FindByIDs(ctx, ids)
		if err != nil {
			return nil, staleKeys{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve alert products")
		}
		byID = product.IndexByID(found)
	}
	bySlug := map[string]models.Product{}
	if len(slugs) > 0 {
		found, err := m.products.FindBySlugs(ctx, slugs)
		if err != nil {
			return nil, staleKeys{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve alert products")
		}
		for _, p := range found {
			bySlug[p.Slug] = p
		}
	}

	var stale staleKeys
	views := make([]AlertView, 0, len(latest))
	for _, row := range latest {
		var live *models.Product
		if row.ProductID != nil && *row.ProductID != uuid.Nil {
			if p, ok := byID[*row.ProductID]; ok {
				live = &p
			}
		} else if row.Slug != nil {
			if p, ok := bySlug[*row.Slug]; ok {
				live = &p
			}
		}
		if live != nil && live.Stock > low {
			if row.ProductID != nil && *row.ProductID != uuid.Nil {
				stale.ids = append(stale.ids, *row.ProductID)
			} else {
				stale.slugs = append(stale.slugs, *row.Slug)
			}
			continue
		}
		views = append(views, toAlertView(row, live))
	}
	return views, stale, nil
}

// forward hands every low event to the sink, deduplicated or not.
func (m *monitor) forward(ctx context.Context, alert *models.LowStockAlert, low int) {
	if m.forwarder == nil {
		return
	}
	m.forwarder.Forward(ctx, AlertPayload{
		ProductID: alert.ProductID,
		Slug:      alert.Slug,
		Stock:     alert.Stock,
		Threshold: low,
		At:        alert.At,
	})
}

func paginate(views []AlertView, skip, limit int) []AlertView {
	if skip >= len(views) {
		return []AlertView{}
	}
	end := skip + limit
	if end > len(views) {
		end = len(views)
	}
	return views[skip:end]
}
