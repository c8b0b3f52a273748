package engine

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the engine.
//
// Everything except ErrStoreCommitFailure is guaranteed to leave durable
// storage untouched. ErrStoreCommitFailure is the one case of genuine
// uncertainty; callers resolve it by re-issuing the request with the same
// correlation id and relying on the idempotency contract.
var (
	ErrValidation           = errors.New("invalid request")
	ErrLimitExceeded        = errors.New("limit exceeded")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrAccountNotEligible   = errors.New("account not eligible")
	ErrSettlementConflict   = errors.New("settlement conflict")
	ErrDuplicateCorrelation = errors.New("duplicate correlation id")
	ErrStoreCommitFailure   = errors.New("store commit failed")

	ErrUnknownAccount     = errors.New("unknown account")
	ErrUnknownEntry       = errors.New("unknown ledger entry")
	ErrUnknownChannel     = errors.New("unknown fee channel")
	ErrCurrencyMismatch   = errors.New("currency mismatch")
	ErrInvalidCurrency    = errors.New("invalid currency code")
	ErrInvalidAccountID   = errors.New("invalid account id")
	ErrInvalidEntryID     = errors.New("invalid entry id")
	ErrInvalidReviewerID  = errors.New("invalid reviewer id")
	ErrInvalidCorrelation = errors.New("invalid correlation id")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidKind        = errors.New("invalid entry kind")
	ErrInvalidStatus      = errors.New("invalid entry status")
	ErrInvalidChannel     = errors.New("invalid channel")
	ErrInvalidMetadata    = errors.New("invalid metadata json")
	ErrInvalidPolicy      = errors.New("invalid policy")
	ErrInvalidService     = errors.New("invalid service config")
	ErrAdjustmentRefused  = errors.New("amount adjustment not allowed for kind")
)

// OperationError tags an engine failure with the operation it occurred in,
// the subject it touched, and a stable code. The three segments feed
// structured operation logs and the HTTP error mapping.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error renders "operation.subject.code: cause".
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap exposes the cause so errors.Is still matches the sentinels above.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation names the engine operation (process, settle, cancel).
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject names what the operation was acting on when it failed.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code is the stable per-step identifier within operation and subject.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError tags err with operation, subject, and code. A nil err stays nil.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// LimitViolation names one failed limit rule.
type LimitViolation struct {
	Rule    string
	Message string
}

// LimitError carries the exhaustive list of limit violations for a request.
// Checks are collected, never short-circuited, so callers can surface every
// failing rule at once.
type LimitError struct {
	Violations []LimitViolation
}

// Error joins all violation messages.
func (limitError LimitError) Error() string {
	message := ErrLimitExceeded.Error()
	for _, violation := range limitError.Violations {
		message += "; " + violation.Message
	}
	return message
}

// Unwrap ties the violation list to the ErrLimitExceeded sentinel.
func (limitError LimitError) Unwrap() error {
	return ErrLimitExceeded
}
