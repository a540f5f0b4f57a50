package health

import (
	"context"

	"github.com/kailas-cloud/ragstore/internal/domain"
)

// IndexPinger checks vector index availability.
type IndexPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// BudgetReader reports tokens left per budget window (-1 when unlimited).
type BudgetReader interface {
	Remaining(w domain.BudgetWindow) int64
}
