package chunkstore

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/chunk"
	"github.com/kailas-cloud/ragstore/internal/domain/record"
	"github.com/kailas-cloud/ragstore/internal/domain/search/filter"
	"github.com/kailas-cloud/ragstore/internal/domain/search/hit"
	"github.com/kailas-cloud/ragstore/internal/domain/search/request"
)

// DocumentSummary describes one stored document.
type DocumentSummary struct {
	Filename       string `json:"filename"`
	Exists         bool   `json:"exists"`
	ChunkCount     int    `json:"chunk_count"`
	MaxChunkNumber int    `json:"max_chunk_number,omitempty"`
	DocumentType   string `json:"document_type,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
	// Truncated is set when the scan hit the summary limit and ChunkCount is a lower bound.
	Truncated bool `json:"truncated,omitempty"`
}

// DocumentSummary counts a document's chunks. A missing document is not an error.
func (s *Service) DocumentSummary(ctx context.Context, tenant, filename string) (DocumentSummary, error) {
	ns, err := record.Namespace(tenant)
	if err != nil {
		return DocumentSummary{}, err
	}
	if strings.TrimSpace(filename) == "" {
		return DocumentSummary{}, fmt.Errorf("%w: filename is required", domain.ErrInvalidInput)
	}

	var hits []hit.Hit
	err = s.withSlot(ctx, "document_summary", func(ctx context.Context) error {
		var err error
		hits, err = s.index.List(ctx, ns, request.List{
			Filters: filter.All(filter.Equal(chunk.KeyFilename, filename)),
			Limit:   s.cfg.SummaryLimit,
		})
		return err
	})
	if err != nil {
		return DocumentSummary{}, storageErr("document summary", err)
	}

	sum := DocumentSummary{Filename: filename}
	if len(hits) == 0 {
		return sum, nil
	}
	sum.Exists = true
	sum.ChunkCount = len(hits)
	sum.DocumentType = hits[0].DocumentType
	sum.CreatedAt = hits[0].CreatedAt
	for i := range hits {
		sum.MaxChunkNumber = max(sum.MaxChunkNumber, hits[i].SequenceNumber)
	}
	if len(hits) >= s.cfg.SummaryLimit {
		sum.Truncated = true
		s.logger.Warn("Document summary truncated",
			zap.String("namespace", ns), zap.String("filename", filename), zap.Int("limit", s.cfg.SummaryLimit))
	}

	s.logger.Info("Document summary retrieved",
		zap.String("namespace", ns), zap.String("filename", filename), zap.Int("chunks", sum.ChunkCount))
	return sum, nil
}

// TenantStats aggregates a tenant's stored documents.
type TenantStats struct {
	Namespace       string         `json:"namespace"`
	TotalDocuments  int            `json:"total_documents"`
	TotalChunks     int            `json:"total_chunks"`
	DocumentTypes   map[string]int `json:"document_types"`
	UniqueFilenames []string       `json:"unique_filenames"`
	RecordCount     domain.Count   `json:"vector_count"`
	LastActivity    string         `json:"last_activity"`
	// Truncated is set when the scan hit the stats limit. Document and type counts then
	// cover only the scanned chunks.
	Truncated bool `json:"truncated,omitempty"`
}

// TenantStats scans up to the configured number of chunks and reports per-document and
// per-type counts. RecordCount comes from the index itself and is unknown if it cannot
// be described. When the scan is truncated and RecordCount is known, TotalChunks is
// taken from RecordCount.
func (s *Service) TenantStats(ctx context.Context, tenant string) (TenantStats, error) {
	ns, err := record.Namespace(tenant)
	if err != nil {
		return TenantStats{}, err
	}

	var (
		hits  []hit.Hit
		count = domain.UnknownCount()
	)
	err = s.withSlot(ctx, "tenant_stats", func(ctx context.Context) error {
		var err error
		hits, err = s.index.List(ctx, ns, request.List{Limit: s.cfg.StatsLimit})
		if err != nil {
			return err
		}
		if st, err := s.index.DescribeNamespace(ctx, ns); err != nil {
			s.logger.Warn("Could not describe namespace", zap.String("namespace", ns), zap.Error(err))
		} else {
			count = domain.KnownCount(st.RecordCount)
		}
		return nil
	})
	if err != nil {
		return TenantStats{}, storageErr("tenant stats", err)
	}

	st := TenantStats{
		Namespace:       ns,
		TotalChunks:     len(hits),
		DocumentTypes:   make(map[string]int),
		UniqueFilenames: []string{},
		RecordCount:     count,
	}
	files := make(map[string]bool)
	for i := range hits {
		h := &hits[i]
		if !files[h.Filename] {
			files[h.Filename] = true
			st.UniqueFilenames = append(st.UniqueFilenames, h.Filename)
		}
		st.DocumentTypes[h.DocumentType]++
		// RFC 3339 UTC timestamps order lexically.
		if h.CreatedAt > st.LastActivity {
			st.LastActivity = h.CreatedAt
		}
	}
	slices.Sort(st.UniqueFilenames)
	st.TotalDocuments = len(st.UniqueFilenames)
	if len(hits) >= s.cfg.StatsLimit {
		st.Truncated = true
		if n, ok := count.Value(); ok {
			st.TotalChunks = max(st.TotalChunks, n)
		}
		s.logger.Warn("Tenant statistics truncated",
			zap.String("namespace", ns), zap.Int("limit", s.cfg.StatsLimit))
	}

	s.logger.Info("Tenant statistics retrieved",
		zap.String("namespace", ns), zap.Int("documents", st.TotalDocuments), zap.Int("chunks", st.TotalChunks))
	return st, nil
}
