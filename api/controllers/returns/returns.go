package returns

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	internalreturns "github.com/angelmondragon/storefront-backend/internal/returns"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const maxTextLength = 1000

type returnItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type requestReturnRequest struct {
	Reason *string             `json:"reason,omitempty"`
	Notes  *string             `json:"notes,omitempty"`
	Items  []returnItemRequest `json:"items,omitempty"`
}

type decisionRequest struct {
	Action string  `json:"action" validate:"required"`
	Note   *string `json:"note,omitempty"`
}

type refundRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty" validate:"omitempty,gt=0"`
	Note   *string          `json:"note,omitempty"`
}

// Request opens a return against an order owned by the caller.
func Request(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req requestReturnRequest
		if err := decodeOptionalBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]internalreturns.ItemInput, 0, len(req.Items))
		for i, item := range req.Items {
			productID, parseErr := uuid.Parse(strings.TrimSpace(item.ProductID))
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid product id").WithDetails(map[string]any{"index": i}))
				return
			}
			items = append(items, internalreturns.ItemInput{ProductID: productID, Quantity: item.Quantity})
		}

		outcome, err := svc.RequestReturn(r.Context(), internalreturns.RequestReturnInput{
			OrderID: orderID,
			Reason:  sanitized(req.Reason),
			Notes:   sanitized(req.Notes),
			Items:   items,
			Actor:   middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalreturns.ToOutcomeDTO(outcome))
	}
}

// Detail returns a return with its linked order.
func Detail(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
			return
		}
		returnID, err := validators.ParseUUIDParam(r, "returnId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		outcome, err := svc.GetReturn(r.Context(), returnID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalreturns.ToOutcomeDTO(outcome))
	}
}

// AdminList returns the newest returns with an order summary each.
func AdminList(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
			return
		}
		input := internalreturns.ListReturnsInput{Actor: middleware.ActorFromContext(r.Context())}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseReturnStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			input.Status = &status
		}
		rows, err := svc.ListReturns(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalreturns.ToListedDTOs(rows))
	}
}

// Decide approves or rejects a pending return.
func Decide(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
			return
		}
		returnID, err := validators.ParseUUIDParam(r, "returnId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req decisionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := svc.DecideReturn(r.Context(), internalreturns.DecideReturnInput{
			ReturnID: returnID,
			Action:   strings.ToLower(strings.TrimSpace(req.Action)),
			Note:     sanitized(req.Note),
			Actor:    middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalreturns.ToOutcomeDTO(outcome))
	}
}

// Refund records the refund of an approved return.
func Refund(svc internalreturns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
			return
		}
		returnID, err := validators.ParseUUIDParam(r, "returnId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req refundRequest
		if err := decodeOptionalBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := svc.MarkRefunded(r.Context(), internalreturns.MarkRefundedInput{
			ReturnID: returnID,
			Amount:   req.Amount,
			Note:     sanitized(req.Note),
			Actor:    middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalreturns.ToOutcomeDTO(outcome))
	}
}

func decodeOptionalBody(r *http.Request, dest any) error {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return nil
	}
	return validators.DecodeJSONBody(r, dest)
}

func sanitized(value *string) *string {
	if value == nil {
		return nil
	}
	out := validators.SanitizeString(*value, maxTextLength)
	if out == "" {
		return nil
	}
	return &out
}
