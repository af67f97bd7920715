package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation groups input that was rejected before any write.
	ErrValidation = errors.New("accounting: validation failed")
	// ErrNotFound indicates the addressed voucher or key does not exist.
	ErrNotFound = errors.New("accounting: not found")
	// ErrConflict indicates an optimistic-lock mismatch or an already cancelled voucher.
	ErrConflict = errors.New("accounting: conflict")
	// ErrSystem indicates an unexpected adapter failure.
	ErrSystem = errors.New("accounting: system failure")
)

// ValidationError reports a rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "accounting: " + e.Reason
	}
	return fmt.Sprintf("accounting: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// BalanceViolationError carries both sums of a journal whose sides disagree.
type BalanceViolationError struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

func (e *BalanceViolationError) Error() string {
	return fmt.Sprintf("accounting: journal lines must balance: debits sum is %s and credits sum is %s", e.Debit.String(), e.Credit.String())
}

func (e *BalanceViolationError) Unwrap() error { return ErrValidation }

// UnknownVariantError is returned when a label has no variant in its table.
type UnknownVariantError struct {
	Kind  string
	Label string
}

func (e *UnknownVariantError) Error() string {
	return fmt.Sprintf("accounting: unknown %s %q", e.Kind, e.Label)
}

func (e *UnknownVariantError) Unwrap() error { return ErrValidation }

// NotFoundError names the entity and key that could not be found.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("accounting: %s %s not found", e.Entity, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// VersionConflictError reports the version the caller expected and the one persisted.
type VersionConflictError struct {
	Entity   string
	Key      string
	Expected int64
	Actual   int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("accounting: %s %s version mismatch: expected %d, actual %d", e.Entity, e.Key, e.Expected, e.Actual)
}

func (e *VersionConflictError) Unwrap() error { return ErrConflict }

// AlreadyCancelledError is returned when cancelling a voucher that carries the red-slip flag.
type AlreadyCancelledError struct {
	VoucherNumber string
}

func (e *AlreadyCancelledError) Error() string {
	return fmt.Sprintf("accounting: journal %s already cancelled", e.VoucherNumber)
}

func (e *AlreadyCancelledError) Unwrap() error { return ErrConflict }

// DuplicateError is returned when inserting a key that already exists.
type DuplicateError struct {
	Entity string
	Key    string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("accounting: %s %s already exists", e.Entity, e.Key)
}

func (e *DuplicateError) Unwrap() error { return ErrConflict }

// SystemError wraps an adapter failure. Both ErrSystem and the cause stay reachable.
type SystemError struct {
	Op  string
	Err error
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("accounting: %s: %v", e.Op, e.Err)
}

func (e *SystemError) Unwrap() []error { return []error{ErrSystem, e.Err} }

// System wraps err unless it is nil or already typed by this package.
func System(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrSystem) {
		return err
	}
	return &SystemError{Op: op, Err: err}
}
