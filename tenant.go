package ragstore

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/ragstore/internal/usecase/chunkstore"
	"github.com/kailas-cloud/ragstore/internal/usecase/ingest"
)

// TenantService runs chunk operations inside one tenant's namespace.
// Tenant names are trimmed and lowercased, so "Alice@X.com" and "alice@x.com" share data.
type TenantService struct {
	tenant string
	chunks *chunkstore.Service
	ingest *ingest.Service
}

// Ingest segments and stores a document.
func (t *TenantService) Ingest(ctx context.Context, doc Document) (IngestResult, error) {
	res, err := t.ingest.Ingest(ctx, toInternalDocument(t.tenant, doc))
	if err != nil {
		return res, fmt.Errorf("ingest: %w", err)
	}
	return res, nil
}

// Reingest replaces every chunk of a document. Without a FileRef the old chunks are
// found by filename.
func (t *TenantService) Reingest(ctx context.Context, doc Document) (IngestResult, error) {
	res, err := t.ingest.Reingest(ctx, toInternalDocument(t.tenant, doc))
	if err != nil {
		return res, fmt.Errorf("reingest: %w", err)
	}
	return res, nil
}

// Search ranks all of the tenant's chunks by similarity to query.
func (t *TenantService) Search(ctx context.Context, query string, opts *SearchOptions) ([]Hit, error) {
	if opts == nil {
		opts = &SearchOptions{}
	}
	filters, err := toInternalFilters(opts.Filters)
	if err != nil {
		return []Hit{}, fmt.Errorf("search: %w", err)
	}
	hits, err := t.chunks.SearchAcrossDocuments(ctx, t.tenant, query, filters, opts.TopK)
	if err != nil {
		return hits, fmt.Errorf("search: %w", err)
	}
	return hits, nil
}

// SearchInFile ranks the chunks of one file. A non-positive topK uses the default.
func (t *TenantService) SearchInFile(ctx context.Context, filename, query string, topK int) ([]Hit, error) {
	hits, err := t.chunks.SearchInFile(ctx, t.tenant, filename, query, topK)
	if err != nil {
		return hits, fmt.Errorf("search in file: %w", err)
	}
	return hits, nil
}

// FileContext returns up to maxChunks chunks of a file in document order.
func (t *TenantService) FileContext(ctx context.Context, filename string, maxChunks int) ([]Hit, error) {
	hits, err := t.chunks.GetFileContext(ctx, t.tenant, filename, maxChunks)
	if err != nil {
		return hits, fmt.Errorf("file context: %w", err)
	}
	return hits, nil
}

// BatchSearch runs queries concurrently. A failed query sets its own Err and never
// fails the batch.
func (t *TenantService) BatchSearch(ctx context.Context, queries []BatchQuery) ([]BatchResult, error) {
	qs, err := toInternalQueries(queries)
	if err != nil {
		return nil, fmt.Errorf("batch search: %w", err)
	}
	results, err := t.chunks.BatchSearch(ctx, t.tenant, qs)
	if err != nil {
		return nil, fmt.Errorf("batch search: %w", err)
	}
	return fromBatchResults(results), nil
}

// DeleteFile removes a file's chunks by its reference. A non-empty filenameFallback also
// removes chunks stored under that filename without any reference.
func (t *TenantService) DeleteFile(ctx context.Context, fileRef int64, filenameFallback string) (DeleteResult, error) {
	res, err := t.chunks.DeleteByFileRef(ctx, t.tenant, fileRef, filenameFallback)
	if err != nil {
		return res, fmt.Errorf("delete file: %w", err)
	}
	return res, nil
}

// DeleteByFilename removes every chunk with the given filename.
func (t *TenantService) DeleteByFilename(ctx context.Context, filename string) (Count, error) {
	n, err := t.chunks.DeleteByFilename(ctx, t.tenant, filename)
	if err != nil {
		return n, fmt.Errorf("delete by filename: %w", err)
	}
	return n, nil
}

// Purge removes the tenant's whole namespace.
func (t *TenantService) Purge(ctx context.Context) (TenantDeleteResult, error) {
	res, err := t.chunks.DeleteAllForTenant(ctx, t.tenant)
	if err != nil {
		return res, fmt.Errorf("purge: %w", err)
	}
	return res, nil
}

// Stats aggregates the tenant's stored documents.
func (t *TenantService) Stats(ctx context.Context) (TenantStats, error) {
	st, err := t.chunks.TenantStats(ctx, t.tenant)
	if err != nil {
		return st, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// Summary describes one stored document. A missing document has Exists false.
func (t *TenantService) Summary(ctx context.Context, filename string) (DocumentSummary, error) {
	sum, err := t.chunks.DocumentSummary(ctx, t.tenant, filename)
	if err != nil {
		return sum, fmt.Errorf("summary: %w", err)
	}
	return sum, nil
}
