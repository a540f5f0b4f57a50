package ragstore

import "github.com/kailas-cloud/ragstore/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidInput           = domain.ErrInvalidInput
	ErrStorage                = domain.ErrStorage
	ErrInvariant              = domain.ErrInvariant
	ErrNotFound               = domain.ErrNotFound
	ErrRateLimited            = domain.ErrRateLimited
	ErrEmbeddingQuotaExceeded = domain.ErrEmbeddingQuotaExceeded
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
)
