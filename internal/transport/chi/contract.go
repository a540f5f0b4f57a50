package chi

import (
	"context"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/batch"
	"github.com/kailas-cloud/ragstore/internal/domain/search/filter"
	"github.com/kailas-cloud/ragstore/internal/domain/search/hit"
	"github.com/kailas-cloud/ragstore/internal/usecase/chunkstore"
	healthuc "github.com/kailas-cloud/ragstore/internal/usecase/health"
	"github.com/kailas-cloud/ragstore/internal/usecase/ingest"
)

// ChunkStore serves retrieval, deletion and statistics.
type ChunkStore interface {
	SearchInFile(ctx context.Context, tenant, filename, query string, topK int) ([]hit.Hit, error)
	SearchAcrossDocuments(
		ctx context.Context, tenant, query string, filters filter.Expression, topK int,
	) ([]hit.Hit, error)
	GetFileContext(ctx context.Context, tenant, filename string, maxChunks int) ([]hit.Hit, error)
	BatchSearch(ctx context.Context, tenant string, queries []batch.Query) ([]batch.Result, error)
	DeleteByFileRef(
		ctx context.Context, tenant string, fileRef int64, filenameFallback string,
	) (chunkstore.DeleteResult, error)
	DeleteByFilename(ctx context.Context, tenant, filename string) (domain.Count, error)
	DeleteAllForTenant(ctx context.Context, tenant string) (chunkstore.TenantDeleteResult, error)
	TenantStats(ctx context.Context, tenant string) (chunkstore.TenantStats, error)
	DocumentSummary(ctx context.Context, tenant, filename string) (chunkstore.DocumentSummary, error)
}

// Ingester runs the segment-then-store pipeline.
type Ingester interface {
	Ingest(ctx context.Context, doc ingest.Document) (ingest.Result, error)
	Reingest(ctx context.Context, doc ingest.Document) (ingest.Result, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
