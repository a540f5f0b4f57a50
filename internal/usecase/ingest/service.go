package ingest

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/chunk"
	"github.com/kailas-cloud/ragstore/internal/domain/record"
	"github.com/kailas-cloud/ragstore/internal/segmenter"
)

// Document is one text to ingest for a tenant.
type Document struct {
	Tenant       string
	FileRef      *int64
	Filename     string
	DocumentType string
	Text         string
	// Metadata is copied into every chunk. Values must be scalars.
	Metadata map[string]any
}

// Result reports an ingestion.
type Result struct {
	Namespace       string                  `json:"namespace"`
	Filename        string                  `json:"filename"`
	FileRef         *int64                  `json:"db_file_id,omitempty"`
	Chunks          int                     `json:"chunks"`
	Truncated       int                     `json:"truncated_chunks"`
	TextLength      int                     `json:"total_text_length"`
	EstimatedTokens int                     `json:"estimated_tokens"`
	Quality         segmenter.QualityReport `json:"quality"`
	// Replaced is set by Reingest.
	Replaced *Replaced `json:"replaced,omitempty"`
}

// Replaced describes the chunks removed by a re-ingestion.
type Replaced struct {
	Deleted domain.Count `json:"deleted_chunks"`
	Method  string       `json:"method"`
}

// Service runs the segment-then-store pipeline.
type Service struct {
	segmenter Segmenter
	store     ChunkStore
	logger    *zap.Logger
}

// New creates the ingestion service.
func New(seg Segmenter, store ChunkStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{segmenter: seg, store: store, logger: logger}
}

// Ingest segments the document and stores its chunks. Storing the same document again
// overwrites chunks with the same ids, but leaves extra chunks of a longer old version;
// use Reingest when the text changed.
func (s *Service) Ingest(ctx context.Context, doc Document) (Result, error) {
	chunks, res, err := s.prepare(doc)
	if err != nil {
		return res, err
	}

	stored, err := s.store.Store(ctx, doc.Tenant, doc.FileRef, doc.Filename, chunks)
	if err != nil {
		return res, fmt.Errorf("store %q: %w", doc.Filename, err)
	}
	res.TextLength = stored.TotalTextLength

	s.logResult("Document ingested", res)
	return res, nil
}

// Reingest replaces every stored chunk of the document with a fresh segmentation.
func (s *Service) Reingest(ctx context.Context, doc Document) (Result, error) {
	chunks, res, err := s.prepare(doc)
	if err != nil {
		return res, err
	}

	replaced, err := s.store.Replace(ctx, doc.Tenant, doc.FileRef, doc.Filename, chunks)
	if err != nil {
		return res, fmt.Errorf("replace %q: %w", doc.Filename, err)
	}
	res.Replaced = &Replaced{Deleted: replaced.Deleted, Method: string(replaced.Method)}
	for i := range chunks {
		res.TextLength += len(chunks[i].Text)
	}

	s.logResult("Document re-ingested", res)
	return res, nil
}

func (s *Service) prepare(doc Document) ([]chunk.Payload, Result, error) {
	res := Result{Filename: doc.Filename, FileRef: doc.FileRef}
	ns, err := record.Namespace(doc.Tenant)
	if err != nil {
		return nil, res, err
	}
	res.Namespace = ns
	if strings.TrimSpace(doc.Filename) == "" {
		return nil, res, fmt.Errorf("%w: filename is required", domain.ErrInvalidInput)
	}
	extra, err := chunk.NewExtra(doc.Metadata)
	if err != nil {
		return nil, res, fmt.Errorf("metadata: %w", err)
	}

	chunks, err := s.segmenter.SegmentWithMetadata(doc.Text, doc.Filename, doc.DocumentType, extra)
	if err != nil {
		return nil, res, fmt.Errorf("segment %q: %w", doc.Filename, err)
	}
	if len(chunks) == 0 {
		return nil, res, fmt.Errorf("%w: %q produced no chunks", domain.ErrInvalidInput, doc.Filename)
	}

	res.Chunks = len(chunks)
	res.Quality = s.segmenter.Quality(chunks)
	for i := range chunks {
		if chunks[i].Metadata.Truncated {
			res.Truncated++
		}
		res.EstimatedTokens += segmenter.EstimateTokens(chunks[i].Text)
	}
	if !res.Quality.Valid {
		s.logger.Warn("Low chunk quality",
			zap.String("filename", doc.Filename), zap.String("reason", res.Quality.Reason),
			zap.Int("chunks", res.Chunks), zap.Int("avg_size", res.Quality.AvgChunkSize))
	}
	return chunks, res, nil
}

func (s *Service) logResult(msg string, res Result) {
	fields := []zap.Field{
		zap.String("namespace", res.Namespace),
		zap.String("filename", res.Filename),
		zap.Int("chunks", res.Chunks),
		zap.Int("truncated", res.Truncated),
		zap.Int("estimated_tokens", res.EstimatedTokens),
	}
	if res.Replaced != nil {
		fields = append(fields, zap.Stringer("deleted", res.Replaced.Deleted), zap.String("method", res.Replaced.Method))
	}
	s.logger.Info(msg, fields...)
}
