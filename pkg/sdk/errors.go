package ctxdex

import "github.com/kailas-cloud/ctxdex/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound               = domain.ErrNotFound
	ErrTenantRequired         = domain.ErrTenantRequired
	ErrInvalidQuery           = domain.ErrInvalidQuery
	ErrInvalidFilter          = domain.ErrInvalidFilter
	ErrInvalidWeights         = domain.ErrInvalidWeights
	ErrInvalidCoordinates     = domain.ErrInvalidCoordinates
	ErrInvalidContext         = domain.ErrInvalidContext
	ErrVectorDimMismatch      = domain.ErrVectorDimMismatch
	ErrEmbeddingQuotaExceeded = domain.ErrEmbeddingQuotaExceeded
)

// IsValidation reports whether err was caused by invalid caller input.
func IsValidation(err error) bool { return domain.IsValidation(err) }
