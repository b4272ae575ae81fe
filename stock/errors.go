/*
errors.go - Centralized error types for the stock ledger

PURPOSE:
  All error types in one place. Sentinels are matched with errors.Is; the
  structured types carry the context a caller needs to act (item id,
  available vs requested quantity) and unwrap to their sentinel.

ERROR CATEGORIES:
  1. Client errors - Validation, NotFound, InactiveItem, InsufficientStock, Conflict
  2. Retryable     - Concurrency (aggregate update lost a race)
  3. Storage       - persistence failure, always a full rollback

SEE ALSO:
  - api/errors.go: HTTP status mapping
*/
package stock

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInactiveItem      = errors.New("item is inactive")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("conflict")
	ErrConcurrency       = errors.New("concurrent update lost after retries")
	ErrStorage           = errors.New("storage failure")

	// ErrConcurrentModification is returned by stores when a compare-and-swap
	// on the aggregate finds a different version. The processor retries it.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrDuplicateIdempotencyKey is returned by stores on a repeated key.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldError is one failed rule on one request field.
type FieldError struct {
	Field   string
	Message string
}

type ValidationError struct {
	Fields []FieldError
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type NotFoundError struct {
	Resource string // "item", "reason", "alert", "transaction"
	ID       int64
}

func (e *NotFoundError) Error() string {
	if e.ID == 0 {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

type InactiveItemError struct {
	ItemID ItemID
	Code   string
}

func (e *InactiveItemError) Error() string {
	return fmt.Sprintf("item %s (%d) is inactive and cannot be used", e.Code, e.ItemID)
}

func (e *InactiveItemError) Unwrap() error { return ErrInactiveItem }

// InsufficientStockError names the first item of a request whose cumulative
// requested quantity exceeds what is on hand.
type InsufficientStockError struct {
	ItemID    ItemID
	Code      string
	Available Quantity
	Requested Quantity
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s (%d): available %s, requested %s",
		e.Code, e.ItemID, e.Available.String(), e.Requested.String())
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

type ConflictError struct {
	Resource string
	ID       int64
	Message  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %d: %s", e.Resource, e.ID, e.Message)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

type ConcurrencyError struct {
	ItemIDs  []ItemID
	Attempts int
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("stock update for items %v lost a race %d times", e.ItemIDs, e.Attempts)
}

func (e *ConcurrencyError) Unwrap() error { return ErrConcurrency }

type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: storage failure: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the caller may retry the same request.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrency) || errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInactiveItem) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrConflict)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// isDomainError reports whether err already belongs to the taxonomy and must
// be surfaced as-is rather than wrapped in a StorageError.
func isDomainError(err error) bool {
	return IsClientError(err) || IsNotFound(err) || errors.Is(err, ErrConcurrency) || errors.Is(err, ErrStorage)
}

// asStorageError wraps err unless it is already a domain error.
func asStorageError(op string, err error) error {
	if err == nil || isDomainError(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
