package domain

import (
	"errors"
	"fmt"
)

// Error codes surfaced to API callers.
const (
	CodeNotFound             = "NOT_FOUND"
	CodeConflict             = "CONFLICT"
	CodeValidation           = "VALIDATION_ERROR"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeRateLimited          = "RATE_LIMITED"
	CodeInternal             = "INTERNAL_ERROR"
	CodeInvalidState         = "INVALID_STATE"
	CodeAlreadyDistributed   = "ALREADY_DISTRIBUTED"
	CodeSettlementInProgress = "SETTLEMENT_IN_PROGRESS"
	CodeNoResults            = "NO_RESULTS"
	CodeInvalidRule          = "INVALID_RULE"
	CodeInvalidAmount        = "INVALID_AMOUNT"
	CodeCurrencyMismatch     = "CURRENCY_MISMATCH"
	CodeUserNotFound         = "USER_NOT_FOUND"
	CodeSettlementFailed     = "SETTLEMENT_FAILED"
)

// AppError is the base domain error type.
type AppError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Status    int    `json:"-"`
	Retryable bool   `json:"retryable,omitempty"`
	Cause     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// HasCode reports whether any AppError in err's chain carries the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	for err != nil {
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// Standard domain error constructors.

func ErrNotFound(entity, id string) *AppError {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", entity, id), Status: 404}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: CodeConflict, Message: msg, Status: 409}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: CodeValidation, Message: msg, Status: 400}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: msg, Status: 401}
}

func ErrForbidden(msg string) *AppError {
	return &AppError{Code: CodeForbidden, Message: msg, Status: 403}
}

func ErrRateLimited(msg string) *AppError {
	return &AppError{Code: CodeRateLimited, Message: msg, Status: 429}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: msg, Status: 500, Cause: cause}
}

// Settlement error constructors.

func ErrInvalidState(tournamentID, status string) *AppError {
	return &AppError{
		Code:    CodeInvalidState,
		Message: fmt.Sprintf("tournament %s is %s, prizes can only be distributed once it is completed", tournamentID, status),
		Status:  409,
	}
}

func ErrAlreadyDistributed(tournamentID string) *AppError {
	return &AppError{Code: CodeAlreadyDistributed, Message: fmt.Sprintf("prizes for tournament %s were already distributed", tournamentID), Status: 409}
}

func ErrSettlementInProgress(tournamentID string) *AppError {
	return &AppError{Code: CodeSettlementInProgress, Message: fmt.Sprintf("settlement of tournament %s is already running", tournamentID), Status: 409, Retryable: true}
}

func ErrNoResults(tournamentID string) *AppError {
	return &AppError{Code: CodeNoResults, Message: fmt.Sprintf("tournament %s has no results", tournamentID), Status: 422}
}

func ErrInvalidRule(msg string) *AppError {
	return &AppError{Code: CodeInvalidRule, Message: msg, Status: 400}
}

func ErrInvalidAmount(msg string) *AppError {
	return &AppError{Code: CodeInvalidAmount, Message: msg, Status: 400}
}

func ErrCurrencyMismatch(walletCurrency, currency string) *AppError {
	return &AppError{Code: CodeCurrencyMismatch, Message: fmt.Sprintf("wallet currency %s does not match %s", walletCurrency, currency), Status: 422}
}

func ErrUserNotFound(userID string) *AppError {
	return &AppError{Code: CodeUserNotFound, Message: fmt.Sprintf("user %s not found", userID), Status: 404}
}

func ErrSettlementFailed(tournamentID string, cause error) *AppError {
	return &AppError{
		Code:      CodeSettlementFailed,
		Message:   fmt.Sprintf("settlement of tournament %s failed and was rolled back", tournamentID),
		Status:    500,
		Retryable: true,
		Cause:     cause,
	}
}
