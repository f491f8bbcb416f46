// Package errors provides custom error types for the BeanMind API.
// All service-layer errors should use AppError to ensure consistent,
// secure error responses that never leak internal details to clients.
package errors

import "net/http"

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Is matches any AppError carrying the same code, so errors.Is works
// against sentinels after Wrap or WithMessage.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// WrapWithMessage combines WithMessage and Wrap.
func WrapWithMessage(sentinel *AppError, message string, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// Authentication & authorization errors.
var (
	ErrUnauthorized       = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrInvalidCredentials = &AppError{Code: "INVALID_CREDENTIALS", Message: "Invalid email or password", StatusCode: http.StatusUnauthorized}
	ErrForbidden          = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}

	ErrInvalidAPIKey         = &AppError{Code: "INVALID_API_KEY", Message: "Invalid or missing API key", StatusCode: http.StatusUnauthorized}
	ErrPipelineNotConfigured = &AppError{Code: "PIPELINE_NOT_CONFIGURED", Message: "Pipeline endpoints are not configured", StatusCode: http.StatusServiceUnavailable}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// User errors.
var (
	ErrUserNotFound   = &AppError{Code: "USER_NOT_FOUND", Message: "User not found", StatusCode: http.StatusNotFound}
	ErrDuplicateEmail = &AppError{Code: "DUPLICATE_EMAIL", Message: "A user with this email already exists", StatusCode: http.StatusConflict}
)

// Recurring rule errors.
var (
	ErrRuleNotFound      = &AppError{Code: "RULE_NOT_FOUND", Message: "Recurring rule not found", StatusCode: http.StatusNotFound}
	ErrInvalidRuleConfig = &AppError{Code: "INVALID_RULE_CONFIG", Message: "Invalid recurring rule configuration", StatusCode: http.StatusBadRequest}
	ErrInvalidTemplate   = &AppError{Code: "INVALID_TEMPLATE", Message: "Invalid transaction template", StatusCode: http.StatusBadRequest}
	ErrDueDateConflict   = &AppError{Code: "DUE_DATE_CONFLICT", Message: "Rule has already been executed for this date", StatusCode: http.StatusConflict}
)

// Budget errors.
var (
	ErrBudgetNotFound      = &AppError{Code: "BUDGET_NOT_FOUND", Message: "Budget not found", StatusCode: http.StatusNotFound}
	ErrInvalidBudgetConfig = &AppError{Code: "INVALID_BUDGET_CONFIG", Message: "Invalid budget configuration", StatusCode: http.StatusBadRequest}
)

// Ledger errors.
var (
	ErrLedgerWriteFailed     = &AppError{Code: "LEDGER_WRITE_FAILED", Message: "The ledger rejected the transaction", StatusCode: http.StatusUnprocessableEntity}
	ErrLedgerAccountNotFound = &AppError{Code: "LEDGER_ACCOUNT_NOT_FOUND", Message: "Ledger account not found", StatusCode: http.StatusNotFound}
	ErrLedgerAccountExists   = &AppError{Code: "LEDGER_ACCOUNT_EXISTS", Message: "Ledger account is already open", StatusCode: http.StatusConflict}
)
