package ingest

import (
	"context"

	"github.com/kailas-cloud/ragstore/internal/domain/chunk"
	"github.com/kailas-cloud/ragstore/internal/segmenter"
	"github.com/kailas-cloud/ragstore/internal/usecase/chunkstore"
)

// Segmenter cuts document text into chunks.
type Segmenter interface {
	SegmentWithMetadata(text, filename, documentType string, extra chunk.Extra) ([]chunk.Payload, error)
	Quality(chunks []chunk.Payload) segmenter.QualityReport
}

// ChunkStore persists chunks for a tenant.
type ChunkStore interface {
	Store(ctx context.Context, tenant string, fileRef *int64, filename string,
		chunks []chunk.Payload) (chunkstore.StoreResult, error)
	Replace(ctx context.Context, tenant string, fileRef *int64, filename string,
		chunks []chunk.Payload) (chunkstore.ReplaceResult, error)
}
