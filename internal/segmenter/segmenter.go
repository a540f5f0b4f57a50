package segmenter

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/chunk"
	"github.com/kailas-cloud/ragstore/internal/metrics"
)

// maxLinesBeforeWarning flags documents that are likely tabular dumps.
const maxLinesBeforeWarning = 10000

// Segmenter turns document text into ordered, overlapping chunks.
// Safe for concurrent use: every call keeps its own state.
type Segmenter struct {
	cfg    Config
	logger *zap.Logger
}

// New validates cfg and creates a Segmenter.
func New(cfg Config, logger *zap.Logger) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Segmenter{cfg: cfg, logger: logger.Named("segmenter")}, nil
}

// Config returns the sizes the segmenter was built with.
func (s *Segmenter) Config() Config { return s.cfg }

// Segment splits text into chunks. Blank text yields an empty slice and no error.
func (s *Segmenter) Segment(text, filename, documentType string) ([]chunk.Payload, error) {
	return s.SegmentWithMetadata(text, filename, documentType, nil)
}

// SegmentWithMetadata is Segment with caller metadata copied into every chunk.
// It fails only on invalid UTF-8 or when the packing loop breaks its iteration bound.
func (s *Segmenter) SegmentWithMetadata(
	text, filename, documentType string, extra chunk.Extra,
) ([]chunk.Payload, error) {
	if documentType == "" {
		documentType = chunk.DefaultDocumentType
	}
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: text of %q is not valid UTF-8", domain.ErrInvalidInput, filename)
	}
	if strings.TrimSpace(text) == "" {
		s.logger.Warn("No text to segment", zap.String("filename", filename), zap.Int("length", len(text)))
		return []chunk.Payload{}, nil
	}

	s.inspect(text, filename)

	cleaned := normalize(text)
	sentences := splitSentences(cleaned)

	p := newPacker(s.cfg, s.logger, filename, sentences)
	pieces, err := p.run()
	if err != nil {
		return nil, fmt.Errorf("segment %q: %w", filename, err)
	}

	chunks := s.wrap(pieces, filename, documentType, extra)

	metrics.SegmenterChunksTotal.Add(float64(len(chunks)))
	if dropped := len(pieces) - len(chunks); dropped > 0 {
		metrics.SegmenterDroppedTotal.Add(float64(dropped))
	}

	if len(chunks) == 0 {
		s.logger.Warn("No chunks above minimum size",
			zap.String("filename", filename),
			zap.Int("raw_chunks", len(pieces)),
			zap.Int("min_chunk_size", s.cfg.MinChunkSize),
		)
	}
	s.logger.Info("Text segmented",
		zap.String("filename", filename),
		zap.String("document_type", documentType),
		zap.Int("original_length", runeLen(text)),
		zap.Int("cleaned_length", runeLen(cleaned)),
		zap.Int("sentences", len(sentences)),
		zap.Int("raw_chunks", len(pieces)),
		zap.Int("chunks", len(chunks)),
		zap.Int("iterations", p.iterations),
		zap.Int("hard_cuts", p.hardCuts),
	)

	return chunks, nil
}

// wrap drops pieces below the minimum size and numbers the rest from 1.
func (s *Segmenter) wrap(pieces []piece, filename, documentType string, extra chunk.Extra) []chunk.Payload {
	out := make([]chunk.Payload, 0, len(pieces))
	prevDropped := false

	for idx, pc := range pieces {
		text := strings.TrimSpace(pc.text)
		size := runeLen(text)
		if size < s.cfg.MinChunkSize {
			s.logger.Debug("Chunk below minimum size, skipping",
				zap.String("filename", filename),
				zap.Int("chunk_index", idx),
				zap.Int("size", size),
			)
			prevDropped = true
			continue
		}

		overlap := pc.overlap
		if prevDropped {
			// The repeated prefix now belongs to no emitted chunk.
			overlap = 0
		}
		prevDropped = false

		out = append(out, chunk.Payload{
			Text:           text,
			SequenceNumber: len(out) + 1,
			DocumentType:   documentType,
			Metadata: chunk.Metadata{
				SourceFilename: filename,
				ChunkSize:      size,
				WordCount:      wordCount(text),
				ChunkIndex:     idx,
				OverlapChars:   overlap,
				Truncated:      pc.truncated,
				Extra:          extra.Clone(),
			},
		})
	}
	return out
}

// inspect logs content that tends to produce poor chunks.
func (s *Segmenter) inspect(text, filename string) {
	var issues []string
	if strings.IndexByte(text, 0) >= 0 {
		issues = append(issues, "null_bytes")
	}
	for _, r := range text {
		if r > 0xFFFF {
			issues = append(issues, "rare_unicode")
			break
		}
	}
	if strings.Count(text, "\n") >= maxLinesBeforeWarning {
		issues = append(issues, "excessive_lines")
	}
	if len(issues) == 0 {
		return
	}
	s.logger.Warn("Potentially problematic content",
		zap.String("filename", filename),
		zap.Strings("issues", issues),
		zap.String("preview", prefixRunes(text, 100)),
	)
}

// EstimateTokens approximates model tokens at four characters per token.
func EstimateTokens(text string) int {
	return runeLen(text) / 4
}
