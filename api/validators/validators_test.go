package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type sampleBody struct {
	Name  string `json:"name" validate:"required"`
	Qty   int    `json:"qty" validate:"gt=0"`
	Email string `json:"email" validate:"omitempty,email"`
}

func TestDecodeJSONBodyValidates(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"","qty":0}`))
	var body sampleBody
	err := DecodeJSONBody(req, &body)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %T", pkgerrors.As(err).Details())
	}
	if details["name"] != "is required" || details["qty"] != "must be greater than 0" {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","qty":1,"bogus":true}`))
	var body sampleBody
	if err := DecodeJSONBody(req, &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type refundBody struct {
	Amount *decimal.Decimal `json:"amount,omitempty" validate:"omitempty,gt=0"`
}

func TestDecodeJSONBodyComparesDecimals(t *testing.T) {
	for body, wantErr := range map[string]bool{
		`{"amount":"12.50"}`: false,
		`{}`:                 false,
		`{"amount":"0"}`:     true,
		`{"amount":"-3"}`:    true,
	} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		var dest refundBody
		err := DecodeJSONBody(req, &dest)
		if wantErr != (err != nil) {
			t.Fatalf("%s: wantErr=%v got %v", body, wantErr, err)
		}
		if wantErr {
			details, _ := pkgerrors.As(err).Details().(map[string]string)
			if details["amount"] != "must be greater than 0" {
				t.Fatalf("%s: unexpected details %v", body, details)
			}
		}
	}
}

func TestDecodeJSONBodyRejectsTrailingData(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","qty":1} {"name":"b","qty":2}`))
	var body sampleBody
	if err := DecodeJSONBody(req, &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeJSONBodyCapsSize(t *testing.T) {
	huge := `{"name":"` + strings.Repeat("x", maxBodyBytes) + `","qty":1}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(huge))
	var body sampleBody
	err := DecodeJSONBody(req, &body)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) || pkgerrors.As(err).Message() != "request body too large" {
		t.Fatalf("expected size rejection, got %v", err)
	}
}

func TestParseQueryTime(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?from=2026-03-01&to=2026-03-02&at=2026-03-01T10:00:00%2B02:00&bad=yesterday", nil)

	from, err := ParseQueryTime(req, "from", false)
	if err != nil || !from.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected from %v (%v)", from, err)
	}
	to, err := ParseQueryTime(req, "to", true)
	if err != nil || !to.After(time.Date(2026, 3, 2, 23, 59, 59, 0, time.UTC)) {
		t.Fatalf("unexpected to %v (%v)", to, err)
	}
	at, err := ParseQueryTime(req, "at", false)
	if err != nil || !at.Equal(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected at %v (%v)", at, err)
	}
	if missing, err := ParseQueryTime(req, "missing", false); err != nil || missing != nil {
		t.Fatalf("expected nil for missing param, got %v (%v)", missing, err)
	}
	if _, err := ParseQueryTime(req, "bad", false); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseOptionalQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?low=3&near=-1", nil)
	low, err := ParseOptionalQueryInt(req, "low", 0, 1000)
	if err != nil || low == nil || *low != 3 {
		t.Fatalf("unexpected low %v (%v)", low, err)
	}
	if _, err := ParseOptionalQueryInt(req, "near", 0, 1000); err == nil {
		t.Fatal("expected out of range error")
	}
	if v, err := ParseOptionalQueryInt(req, "skip", 0, 10); err != nil || v != nil {
		t.Fatalf("expected nil for missing param, got %v (%v)", v, err)
	}
}

func TestParseUUIDParam(t *testing.T) {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderId", "not-a-uuid")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	if _, err := ParseUUIDParam(req, "orderId"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello world  ", 5); got != "hello" {
		t.Fatalf("unexpected %q", got)
	}
}
