package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected", detailsOK: true},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsCodeAndEnsure(t *testing.T) {
	err := Newf(CodeConflict, "insufficient stock for %s", "p-1")
	if !IsCode(err, CodeConflict) {
		t.Fatalf("expected conflict code")
	}
	if err.Message() != "insufficient stock for p-1" {
		t.Fatalf("unexpected message %q", err.Message())
	}
	if IsCode(stdErrors.New("plain"), CodeConflict) {
		t.Fatalf("plain errors carry no code")
	}

	if Ensure(nil, "x") != nil {
		t.Fatalf("Ensure(nil) should be nil")
	}
	if got := Ensure(err, "ignored"); got != error(err) {
		t.Fatalf("typed errors should pass through")
	}
	wrapped := Ensure(stdErrors.New("db down"), "loading order")
	if !IsCode(wrapped, CodeInternal) {
		t.Fatalf("expected internal code, got %v", wrapped)
	}
}

func TestResolveWrapsUntypedErrors(t *testing.T) {
	if got := Resolve(New(CodeNotFound, "order missing")); got.Code() != CodeNotFound {
		t.Fatalf("typed error should resolve to itself, got %s", got.Code())
	}
	if got := Resolve(stdErrors.New("socket closed")); got.Code() != CodeInternal {
		t.Fatalf("untyped error should resolve to internal, got %s", got.Code())
	}
	if got := Resolve(nil); got.Code() != CodeInternal {
		t.Fatalf("nil should resolve to internal, got %s", got.Code())
	}
}

func TestLogFieldsIncludesPostgresDiagnostics(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23514", ConstraintName: "products_stock_check", TableName: "products"}
	err := Wrap(CodeConflict, pgErr, "decrementing stock")

	fields := LogFields(err)
	if fields["error_code"] != string(CodeConflict) {
		t.Fatalf("unexpected error_code %v", fields["error_code"])
	}
	if fields["pg_constraint"] != "products_stock_check" || fields["pg_code"] != "23514" {
		t.Fatalf("postgres diagnostics missing: %v", fields)
	}
	if _, ok := fields["pg_column"]; ok {
		t.Fatalf("empty diagnostics should be omitted: %v", fields)
	}
	chain, ok := fields["error_chain"].([]string)
	if !ok || len(chain) != 2 {
		t.Fatalf("expected two chain links, got %v", fields["error_chain"])
	}
}

func TestLogFieldsPlainError(t *testing.T) {
	fields := LogFields(stdErrors.New("boom"))
	if _, ok := fields["error_code"]; ok {
		t.Fatalf("plain errors carry no code: %v", fields)
	}
	if fields["error"] != "boom" {
		t.Fatalf("unexpected error field %v", fields["error"])
	}
}
