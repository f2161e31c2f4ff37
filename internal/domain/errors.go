package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrTenantRequired signals a query or write without a tenant scope.
	ErrTenantRequired = errors.New("tenant is required")
	// ErrInvalidQuery signals an empty or oversized query text.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrInvalidFilter signals a malformed filter predicate.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrInvalidWeights signals negative or non-finite fusion weights.
	ErrInvalidWeights = errors.New("invalid weights")
	// ErrInvalidCoordinates signals out-of-range geo coordinates or radius.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrInvalidContext signals a context record that cannot be stored.
	ErrInvalidContext = errors.New("invalid context")
	// ErrInvalidPeriod signals an unknown usage aggregation period.
	ErrInvalidPeriod = errors.New("invalid period")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// IsValidation reports whether err is a caller-side validation failure.
func IsValidation(err error) bool {
	for _, s := range []error{
		ErrTenantRequired, ErrInvalidQuery, ErrInvalidFilter,
		ErrInvalidWeights, ErrInvalidCoordinates, ErrInvalidContext, ErrInvalidPeriod,
	} {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}
