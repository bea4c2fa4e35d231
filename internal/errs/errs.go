// Package errs holds the error taxonomy shared by the trading and identity
// services. The HTTP layer maps each kind to a status code.
package errs

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNotFound is wrapped by stores when a required record is absent
var ErrNotFound = errors.New("not found")

// ErrDuplicate is wrapped by stores when a unique constraint rejects a write
var ErrDuplicate = errors.New("already exists")

// ValidationError reports missing or malformed input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Invalid builds a ValidationError for field
func Invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InsufficientFundsError is returned when a buy costs more than the balance
type InsufficientFundsError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("Insufficient balance. Required: %s, Available: %s",
		e.Required.StringFixed(2), e.Available.StringFixed(2))
}

// InsufficientHoldingsError is returned when a sell exceeds the held quantity
type InsufficientHoldingsError struct {
	Symbol string
	Held   decimal.Decimal
}

func (e *InsufficientHoldingsError) Error() string {
	return fmt.Sprintf("Insufficient stock quantity. You have %s shares of %s", e.Held.String(), e.Symbol)
}

// StorageError wraps a persistence failure. Callers only see a generic message.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Storage wraps err as a StorageError unless it is nil or already classified
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) || errors.Is(err, ErrNotFound) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsClientError reports whether err should be shown to the caller as a 4xx
func IsClientError(err error) bool {
	var ve *ValidationError
	var fe *InsufficientFundsError
	var he *InsufficientHoldingsError
	return errors.As(err, &ve) || errors.As(err, &fe) || errors.As(err, &he)
}
