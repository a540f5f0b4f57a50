package chunkstore

import (
	"context"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/record"
	"github.com/kailas-cloud/ragstore/internal/domain/search/filter"
	"github.com/kailas-cloud/ragstore/internal/domain/search/hit"
	"github.com/kailas-cloud/ragstore/internal/domain/search/request"
)

// Index is the vector index capability the chunk store needs. Every call is scoped
// to one tenant namespace.
type Index interface {
	Ping(ctx context.Context) error
	// Upsert inserts or replaces records by id.
	Upsert(ctx context.Context, namespace string, records []record.Record) error
	Search(ctx context.Context, namespace, query string, topK int, filters filter.Expression) ([]hit.Hit, error)
	List(ctx context.Context, namespace string, opts request.List) ([]hit.Hit, error)
	DeleteByIDs(ctx context.Context, namespace string, ids []string) (int, error)
	// DeleteByFilter may report an unknown count when the backend cannot tell.
	DeleteByFilter(ctx context.Context, namespace string, filters filter.Expression) (domain.Count, error)
	DeleteNamespace(ctx context.Context, namespace string) (int, error)
	DescribeNamespace(ctx context.Context, namespace string) (record.Stats, error)
}
