// Package errs implements the engine's closed error taxonomy. Every error
// the domain packages return is one of these kinds, matched with errors.Is
// against the exported sentinels and inspected for detail with errors.As
// against *Error. This generalizes the sentinel-struct-with-Is pattern the
// teacher uses for WorkerError and ServiceError, with typed payload fields
// instead of a bare message string.
package errs

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies one taxonomy entry. errors.Is compares on Kind only, so
// a caller can write errors.Is(err, errs.ErrPricingNotFound) regardless of
// which provider/model/timestamp triggered it.
type Kind string

const (
	KindValidation             Kind = "validation"
	KindPricingNotFound        Kind = "pricing_not_found"
	KindPricingOverlapConflict Kind = "pricing_overlap_conflict"
	KindPricingStructureMismatch Kind = "pricing_structure_mismatch"
	KindCurrencyMixed          Kind = "currency_mixed"
	KindDuplicateIngest        Kind = "duplicate_ingest"
	KindInsufficientHistory    Kind = "insufficient_history"
	KindArithmeticOverflow     Kind = "arithmetic_overflow"
	KindCancelled              Kind = "cancelled"
	KindTimeout                Kind = "timeout"
	KindPersistence            Kind = "persistence"
	KindInternal               Kind = "internal"
)

// Error is the concrete type every engine error is built from.
type Error struct {
	Kind Kind

	// Validation
	Field  string
	Reason string

	// Pricing lookups
	Provider string
	Model    string
	At       time.Time
	Region   string

	// Pricing conflicts
	ExistingID uuid.UUID

	// Aggregation
	Currencies []string

	// Ingestion
	UsageID uuid.UUID

	// Forecasting
	Have int
	Need int

	// Wrapping
	Cause error
	Code  string
}

// Error satisfies the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case KindValidation:
		return fmt.Sprintf("validation: field %q: %s", e.Field, e.Reason)
	case KindPricingNotFound:
		if e.Region != "" {
			return fmt.Sprintf("pricing not found: provider=%s model=%s region=%s at=%s", e.Provider, e.Model, e.Region, e.At.Format(time.RFC3339))
		}
		return fmt.Sprintf("pricing not found: provider=%s model=%s at=%s", e.Provider, e.Model, e.At.Format(time.RFC3339))
	case KindPricingOverlapConflict:
		return fmt.Sprintf("pricing interval overlaps existing table %s", e.ExistingID)
	case KindPricingStructureMismatch:
		return fmt.Sprintf("pricing structure mismatch: %s", e.Reason)
	case KindCurrencyMixed:
		return fmt.Sprintf("cannot aggregate mixed currencies: %v", e.Currencies)
	case KindDuplicateIngest:
		return fmt.Sprintf("duplicate usage record: %s", e.UsageID)
	case KindInsufficientHistory:
		return fmt.Sprintf("insufficient history: have %d, need %d", e.Have, e.Need)
	case KindArithmeticOverflow:
		return "arithmetic overflow computing cost"
	case KindCancelled:
		return "operation cancelled"
	case KindTimeout:
		return "operation timed out"
	case KindPersistence:
		if e.Cause != nil {
			return fmt.Sprintf("persistence error: %s", e.Cause)
		}
		return "persistence error"
	case KindInternal:
		if e.Cause != nil {
			return fmt.Sprintf("internal error [%s]: %s", e.Code, e.Cause)
		}
		return fmt.Sprintf("internal error [%s]", e.Code)
	default:
		return fmt.Sprintf("error (%s)", e.Kind)
	}
}

// Unwrap exposes Cause so errors.Is/As can chain through it.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches by Kind only, mirroring the teacher's WorkerError.Is pattern:
// callers compare against the zero-payload sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is comparisons. None of these carry payload; use
// errors.As to recover the detail fields from the error actually returned.
var (
	ErrValidation               = &Error{Kind: KindValidation}
	ErrPricingNotFound          = &Error{Kind: KindPricingNotFound}
	ErrPricingOverlapConflict   = &Error{Kind: KindPricingOverlapConflict}
	ErrPricingStructureMismatch = &Error{Kind: KindPricingStructureMismatch}
	ErrCurrencyMixed            = &Error{Kind: KindCurrencyMixed}
	ErrDuplicateIngest          = &Error{Kind: KindDuplicateIngest}
	ErrInsufficientHistory      = &Error{Kind: KindInsufficientHistory}
	ErrArithmeticOverflow       = &Error{Kind: KindArithmeticOverflow}
	ErrCancelled                = &Error{Kind: KindCancelled}
	ErrTimeout                  = &Error{Kind: KindTimeout}
	ErrPersistence              = &Error{Kind: KindPersistence}
	ErrInternal                 = &Error{Kind: KindInternal}
)

// Validation builds a KindValidation error.
func Validation(field, reason string) *Error {
	return &Error{Kind: KindValidation, Field: field, Reason: reason}
}

// PricingNotFound builds a KindPricingNotFound error.
func PricingNotFound(provider, model string, at time.Time, region string) *Error {
	return &Error{Kind: KindPricingNotFound, Provider: provider, Model: model, At: at, Region: region}
}

// PricingOverlapConflict builds a KindPricingOverlapConflict error.
func PricingOverlapConflict(existingID uuid.UUID) *Error {
	return &Error{Kind: KindPricingOverlapConflict, ExistingID: existingID}
}

// PricingStructureMismatch builds a KindPricingStructureMismatch error.
func PricingStructureMismatch(reason string) *Error {
	return &Error{Kind: KindPricingStructureMismatch, Reason: reason}
}

// CurrencyMixed builds a KindCurrencyMixed error.
func CurrencyMixed(currencies []string) *Error {
	return &Error{Kind: KindCurrencyMixed, Currencies: currencies}
}

// DuplicateIngest builds a KindDuplicateIngest error.
func DuplicateIngest(usageID uuid.UUID) *Error {
	return &Error{Kind: KindDuplicateIngest, UsageID: usageID}
}

// InsufficientHistory builds a KindInsufficientHistory error.
func InsufficientHistory(have, need int) *Error {
	return &Error{Kind: KindInsufficientHistory, Have: have, Need: need}
}

// ArithmeticOverflow builds a KindArithmeticOverflow error.
func ArithmeticOverflow() *Error { return &Error{Kind: KindArithmeticOverflow} }

// Cancelled builds a KindCancelled error.
func Cancelled() *Error { return &Error{Kind: KindCancelled} }

// Timeout builds a KindTimeout error.
func Timeout() *Error { return &Error{Kind: KindTimeout} }

// Persistence wraps cause as a KindPersistence error.
func Persistence(cause error) *Error {
	return &Error{Kind: KindPersistence, Cause: cause}
}

// Internal wraps cause as a KindInternal error tagged with code.
func Internal(code string, cause error) *Error {
	return &Error{Kind: KindInternal, Code: code, Cause: cause}
}
