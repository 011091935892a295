package errors

import (
	"fmt"

	apperrors "github.com/wekeepgrowing/academy-payments/pkg/errors"
)

// codedError is a sentinel that carries a pkg/errors code.
type codedError struct {
	code string
	msg  string
}

func (e *codedError) Error() string   { return e.msg }
func (e *codedError) Code() string    { return e.code }
func (e *codedError) Message() string { return e.msg }

var (
	// ErrInvalidSignature is returned when a webhook payload fails authenticity checks.
	ErrInvalidSignature error = &codedError{code: apperrors.ErrInvalidSignature, msg: "invalid webhook signature"}

	// ErrMalformedEvent is returned when an authentic webhook event cannot be decoded.
	ErrMalformedEvent error = &codedError{code: apperrors.ErrInternal, msg: "malformed webhook event"}

	// ErrLedgerEntryNotFound is returned when no ledger entry matches a lookup.
	ErrLedgerEntryNotFound error = &codedError{code: apperrors.ErrNotFound, msg: "ledger entry not found"}
)

// ValidationError reports a rejected request before anything is written to the ledger.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Code() string    { return apperrors.ErrValidation }
func (e *ValidationError) Message() string { return e.Error() }

// NewValidationError creates a new ValidationError
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}

// GatewayUnavailableError is returned when the payment gateway cannot be reached,
// is not configured, or rejected the intent.
type GatewayUnavailableError struct {
	Gateway       string
	LedgerEntryID string
	// Timeout is set when the call exceeded its deadline and the entry was left pending.
	Timeout bool
	Err     error
}

func (e *GatewayUnavailableError) Error() string {
	msg := "payment gateway unavailable"
	if e.Gateway != "" {
		msg = fmt.Sprintf("payment gateway %s unavailable", e.Gateway)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayUnavailableError) Unwrap() error { return e.Err }
func (e *GatewayUnavailableError) Code() string  { return apperrors.ErrGatewayUnavailable }

// Message hides the gateway's own error text from API callers.
func (e *GatewayUnavailableError) Message() string {
	if e.Timeout {
		return "payment gateway timed out, please retry later"
	}
	return "payment gateway unavailable, please retry later"
}

// InvalidTransitionError is raised when an event does not fit the current ledger state.
type InvalidTransitionError struct {
	LedgerEntryID string
	From          string
	To            string
}

func (e *InvalidTransitionError) Error() string {
	if e.LedgerEntryID == "" {
		return fmt.Sprintf("invalid ledger transition %s -> %s: no ledger entry", e.From, e.To)
	}
	return fmt.Sprintf("invalid ledger transition %s -> %s for entry %s", e.From, e.To, e.LedgerEntryID)
}

func (e *InvalidTransitionError) Code() string    { return apperrors.ErrInvalidTransition }
func (e *InvalidTransitionError) Message() string { return e.Error() }
