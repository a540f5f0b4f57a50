package chunkstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/batch"
	"github.com/kailas-cloud/ragstore/internal/domain/chunk"
	"github.com/kailas-cloud/ragstore/internal/domain/record"
	"github.com/kailas-cloud/ragstore/internal/domain/search/filter"
	"github.com/kailas-cloud/ragstore/internal/domain/search/hit"
	"github.com/kailas-cloud/ragstore/internal/domain/search/request"
)

// SearchInFile ranks chunks of one file by similarity to query.
func (s *Service) SearchInFile(
	ctx context.Context, tenant, filename, query string, topK int,
) ([]hit.Hit, error) {
	if strings.TrimSpace(filename) == "" {
		return []hit.Hit{}, fmt.Errorf("%w: filename is required", domain.ErrInvalidInput)
	}
	if topK <= 0 {
		topK = s.cfg.SearchTopK
	}
	return s.search(ctx, "search_in_file", tenant, query, topK, filter.All(filter.Equal(chunk.KeyFilename, filename)))
}

// SearchAcrossDocuments ranks all of a tenant's chunks, optionally restricted by filters.
func (s *Service) SearchAcrossDocuments(
	ctx context.Context, tenant, query string, filters filter.Expression, topK int,
) ([]hit.Hit, error) {
	if topK <= 0 {
		topK = s.cfg.AcrossTopK
	}
	return s.search(ctx, "search_across", tenant, query, topK, filters)
}

func (s *Service) search(
	ctx context.Context, op, tenant, query string, topK int, filters filter.Expression,
) ([]hit.Hit, error) {
	ns, req, err := s.prepareSearch(tenant, query, topK, filters)
	if err != nil {
		return []hit.Hit{}, err
	}

	var hits []hit.Hit
	err = s.withSlot(ctx, op, func(ctx context.Context) error {
		var err error
		hits, err = s.index.Search(ctx, ns, req.Query(), req.TopK(), req.Filters())
		return err
	})
	if err != nil {
		s.logger.Warn("Search failed", zap.String("op", op), zap.String("namespace", ns), zap.Error(err))
		return []hit.Hit{}, storageErr(op, err)
	}

	hit.SortByRelevance(hits)
	s.logger.Info("Search completed",
		zap.String("op", op), zap.String("namespace", ns), zap.Int("results", len(hits)))
	return hits, nil
}

func (s *Service) prepareSearch(
	tenant, query string, topK int, filters filter.Expression,
) (string, request.Request, error) {
	ns, err := record.Namespace(tenant)
	if err != nil {
		return "", request.Request{}, err
	}
	if err := ValidateFilters(filters); err != nil {
		return "", request.Request{}, err
	}
	req, err := request.New(query, filters, topK)
	if err != nil {
		return "", request.Request{}, err
	}
	return ns, req, nil
}

// GetFileContext returns up to maxChunks chunks of one file in document order.
func (s *Service) GetFileContext(
	ctx context.Context, tenant, filename string, maxChunks int,
) ([]hit.Hit, error) {
	ns, err := record.Namespace(tenant)
	if err != nil {
		return []hit.Hit{}, err
	}
	if strings.TrimSpace(filename) == "" {
		return []hit.Hit{}, fmt.Errorf("%w: filename is required", domain.ErrInvalidInput)
	}
	if maxChunks <= 0 {
		maxChunks = s.cfg.ContextMaxChunks
	}

	var hits []hit.Hit
	err = s.withSlot(ctx, "file_context", func(ctx context.Context) error {
		var err error
		hits, err = s.index.List(ctx, ns, request.List{
			Filters: filter.All(filter.Equal(chunk.KeyFilename, filename)),
			Limit:   maxChunks,
			SortBy:  chunk.KeyChunkNumber,
		})
		return err
	})
	if err != nil {
		s.logger.Warn("File context retrieval failed",
			zap.String("namespace", ns), zap.String("filename", filename), zap.Error(err))
		return []hit.Hit{}, storageErr("file context", err)
	}

	hit.SortByDocumentOrder(hits)
	s.logger.Info("File context retrieved",
		zap.String("namespace", ns), zap.String("filename", filename), zap.Int("chunks", len(hits)))
	return hits, nil
}

// BatchSearch runs queries concurrently, each under the shared limiter. Results keep the
// input order and a failed query never aborts the others: it yields its own error and no hits.
func (s *Service) BatchSearch(ctx context.Context, tenant string, queries []batch.Query) ([]batch.Result, error) {
	ns, err := record.Namespace(tenant)
	if err != nil {
		return nil, err
	}
	if len(queries) > batch.MaxQueries {
		return nil, fmt.Errorf("%w: batch of %d queries exceeds %d", domain.ErrInvalidInput, len(queries), batch.MaxQueries)
	}

	results := make([]batch.Result, len(queries))
	var wg sync.WaitGroup
	for i := range queries {
		i := i
		q := queries[i].WithDefaultID()
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.searchOne(ctx, ns, q)
		}()
	}
	wg.Wait()

	failed := 0
	total := 0
	for i := range results {
		if results[i].Err() != nil {
			failed++
		}
		total += len(results[i].Hits())
	}
	s.logger.Info("Batch search completed",
		zap.String("namespace", ns), zap.Int("queries", len(queries)),
		zap.Int("failed", failed), zap.Int("results", total))
	return results, nil
}

func (s *Service) searchOne(ctx context.Context, ns string, q batch.Query) batch.Result {
	topK := q.TopK
	if topK <= 0 {
		topK = s.cfg.SearchTopK
	}
	if err := ValidateFilters(q.Filters); err != nil {
		return batch.NewError(q, err)
	}
	req, err := request.New(q.Text, q.Filters, topK)
	if err != nil {
		return batch.NewError(q, err)
	}

	var hits []hit.Hit
	err = s.withSlot(ctx, "batch_search", func(ctx context.Context) error {
		var err error
		hits, err = s.index.Search(ctx, ns, req.Query(), req.TopK(), req.Filters())
		return err
	})
	if err != nil {
		return batch.NewError(q, storageErr("batch query", err))
	}
	hit.SortByRelevance(hits)
	return batch.NewOK(q, hits)
}
