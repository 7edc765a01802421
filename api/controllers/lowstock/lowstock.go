package lowstock

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	internallowstock "github.com/angelmondragon/storefront-backend/internal/lowstock"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const maxQueryInt = 1 << 20

type stockEventRequest struct {
	ProductID *string `json:"product_id,omitempty"`
	Slug      *string `json:"slug,omitempty"`
	Stock     *int    `json:"stock" validate:"required"`
	Low       *int    `json:"low,omitempty"`
	Near      *int    `json:"near,omitempty"`
}

type stockEventResponse struct {
	Outcome    internallowstock.Outcome    `json:"outcome"`
	AlertID    uuid.UUID                   `json:"alert_id"`
	Thresholds internallowstock.Thresholds `json:"thresholds"`
}

// RecordEvent ingests a stock observation. A persisted alert answers 201;
// ignored and suppressed events answer 204.
func RecordEvent(monitor internallowstock.Monitor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if monitor == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "low stock monitor unavailable"))
			return
		}

		var req stockEventRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		thresholds, err := monitor.ResolveThresholds(req.Low, req.Near)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		event := internallowstock.StockEvent{Slug: req.Slug, Stock: *req.Stock}
		if req.ProductID != nil && strings.TrimSpace(*req.ProductID) != "" {
			id, parseErr := uuid.Parse(strings.TrimSpace(*req.ProductID))
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid product id").WithDetails(map[string]any{"field": "product_id"}))
				return
			}
			event.ProductID = &id
		}

		result, err := monitor.RecordStockEvent(r.Context(), event, thresholds)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !result.Recorded() || result.Alert == nil {
			responses.WriteNoContent(w)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, stockEventResponse{
			Outcome:    result.Outcome,
			AlertID:    result.Alert.ID,
			Thresholds: thresholds,
		})
	}
}

// ListAlerts serves the deduplicated alert dashboard.
func ListAlerts(monitor internallowstock.Monitor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if monitor == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "low stock monitor unavailable"))
			return
		}

		// out-of-range paging is clamped by the monitor
		limit, err := validators.ParseQueryInt(r, "limit", internallowstock.DefaultListLimit, 0, maxQueryInt)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		skip, err := validators.ParseQueryInt(r, "skip", 0, -maxQueryInt, maxQueryInt)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		low, err := validators.ParseOptionalQueryInt(r, "low", 0, maxQueryInt)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		near, err := validators.ParseOptionalQueryInt(r, "near", 0, maxQueryInt)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		thresholds, err := monitor.ResolveThresholds(low, near)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := monitor.ListAlerts(r.Context(), internallowstock.ListAlertsInput{
			Limit:      limit,
			Skip:       skip,
			Thresholds: thresholds,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
