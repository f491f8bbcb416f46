package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestWrap_PreservesSentinelAndCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(ErrLedgerWriteFailed, cause)

	if !stderrors.Is(err, ErrLedgerWriteFailed) {
		t.Error("expected errors.Is to match the sentinel")
	}
	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to reach the wrapped cause")
	}
	if err.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", err.StatusCode)
	}
	if err.Error() != ErrLedgerWriteFailed.Message {
		t.Errorf("internal details leaked into message: %s", err.Error())
	}
}

func TestWithMessage(t *testing.T) {
	err := WithMessage(ErrInvalidRuleConfig, "weekdays must not be empty")
	if err.Code != "INVALID_RULE_CONFIG" || err.StatusCode != http.StatusBadRequest {
		t.Errorf("unexpected error %+v", err)
	}
	if !stderrors.Is(err, ErrInvalidRuleConfig) {
		t.Error("expected errors.Is to match by code")
	}
	if stderrors.Is(err, ErrInvalidTemplate) {
		t.Error("different codes must not match")
	}
}

func TestAs_ThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("execute rule: %w", ErrDueDateConflict)
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		t.Fatal("expected errors.As to find the AppError")
	}
	if appErr.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", appErr.StatusCode)
	}
}
