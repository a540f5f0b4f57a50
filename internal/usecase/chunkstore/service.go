package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/chunk"
	"github.com/kailas-cloud/ragstore/internal/domain/record"
	"github.com/kailas-cloud/ragstore/internal/metrics"
)

// Defaults applied by New when the config leaves a value unset.
const (
	DefaultMaxConcurrentCalls = 15
	DefaultSearchTopK         = 10
	DefaultAcrossTopK         = 20
	DefaultContextMaxChunks   = 50
	DefaultSummaryLimit       = 1000
	DefaultStatsLimit         = 10000
	DefaultDeletePageSize     = 1000
	// verifyTopK is how many survivors the delete verification looks for.
	verifyTopK = 5
	// maxDeleteRounds bounds search-then-delete loops.
	maxDeleteRounds = 100
)

// Config tunes the chunk store.
type Config struct {
	MaxConcurrentCalls int
	SearchTopK         int
	AcrossTopK         int
	ContextMaxChunks   int
	SummaryLimit       int
	StatsLimit         int
	DeletePageSize     int
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrentCalls <= 0 {
		c.MaxConcurrentCalls = DefaultMaxConcurrentCalls
	}
	if c.SearchTopK <= 0 {
		c.SearchTopK = DefaultSearchTopK
	}
	if c.AcrossTopK <= 0 {
		c.AcrossTopK = DefaultAcrossTopK
	}
	if c.ContextMaxChunks <= 0 {
		c.ContextMaxChunks = DefaultContextMaxChunks
	}
	if c.SummaryLimit <= 0 {
		c.SummaryLimit = DefaultSummaryLimit
	}
	if c.StatsLimit <= 0 {
		c.StatsLimit = DefaultStatsLimit
	}
	if c.DeletePageSize <= 0 {
		c.DeletePageSize = DefaultDeletePageSize
	}
}

// Service stores, searches and deletes tenant chunks. Every call to the index holds a
// slot of one shared limiter for its whole duration.
type Service struct {
	index   Index
	limiter *semaphore.Weighted
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a chunk store service.
func New(index Index, cfg Config, logger *zap.Logger) *Service {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		index:   index,
		limiter: semaphore.NewWeighted(int64(cfg.MaxConcurrentCalls)),
		cfg:     cfg,
		logger:  logger.Named("chunkstore"),
		now:     time.Now,
	}
}

// withSlot runs fn while holding one limiter slot and records the outcome.
// A canceled context aborts the wait without taking a slot.
func (s *Service) withSlot(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	defer func() {
		metrics.StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	if err := s.limiter.Acquire(ctx, 1); err != nil {
		metrics.StoreOperationsTotal.WithLabelValues(op, "canceled").Inc()
		return fmt.Errorf("%s: wait for slot: %w", op, err)
	}
	metrics.StoreLimiterWait.Observe(time.Since(start).Seconds())
	metrics.StoreInFlight.Inc()
	defer func() {
		metrics.StoreInFlight.Dec()
		s.limiter.Release(1)
	}()

	err := fn(ctx)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.StoreOperationsTotal.WithLabelValues(op, status).Inc()
	return err
}

// Ping checks the index.
func (s *Service) Ping(ctx context.Context) error {
	return s.withSlot(ctx, "ping", s.index.Ping)
}

// StoreResult reports a successful store.
type StoreResult struct {
	Stored          int    `json:"stored_chunks"`
	Filename        string `json:"filename"`
	Namespace       string `json:"namespace"`
	TotalTextLength int    `json:"total_text_length"`
}

// Store writes a document's chunks in one batch. Record ids prefer fileRef over filename,
// so storing the same chunks again overwrites instead of duplicating.
func (s *Service) Store(
	ctx context.Context, tenant string, fileRef *int64, filename string, chunks []chunk.Payload,
) (StoreResult, error) {
	ns, err := validateStore(tenant, filename, chunks)
	if err != nil {
		return StoreResult{}, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}

	createdAt := s.now()
	records := make([]record.Record, len(chunks))
	textLen := 0
	for i := range chunks {
		records[i] = record.New(ns, fileRef, filename, chunks[i], createdAt)
		textLen += utf8.RuneCountInString(chunks[i].Text)
	}

	err = s.withSlot(ctx, "store", func(ctx context.Context) error {
		return s.index.Upsert(ctx, ns, records)
	})
	if err != nil {
		s.logger.Error("Chunk store failed",
			zap.String("namespace", ns), zap.String("filename", filename),
			zap.Int("chunks", len(records)), zap.Error(err))
		return StoreResult{}, storageErr("store chunks", err)
	}

	s.logger.Info("Chunks stored",
		zap.String("namespace", ns), zap.String("filename", filename),
		zap.Int("chunks", len(records)), zap.Int("text_length", textLen))

	return StoreResult{
		Stored:          len(records),
		Filename:        filename,
		Namespace:       ns,
		TotalTextLength: textLen,
	}, nil
}

func validateStore(tenant, filename string, chunks []chunk.Payload) (string, error) {
	ns, err := record.Namespace(tenant)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", fmt.Errorf("%w: no chunks to store", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(filename) == "" {
		return "", fmt.Errorf("%w: filename is required", domain.ErrInvalidInput)
	}
	if strings.Contains(filename, chunk.FilenameSeparator) {
		return "", fmt.Errorf("%w: filename may not contain %q", domain.ErrInvalidInput, chunk.FilenameSeparator)
	}
	seen := make(map[int]bool, len(chunks))
	for i := range chunks {
		seq := chunks[i].SequenceNumber
		if seq < 1 {
			return "", fmt.Errorf("%w: chunk %d has sequence number %d", domain.ErrInvalidInput, i, seq)
		}
		if seen[seq] {
			return "", fmt.Errorf("%w: duplicate sequence number %d", domain.ErrInvalidInput, seq)
		}
		seen[seq] = true
	}
	return ns, nil
}

// ReplaceResult reports a delete-then-store update.
type ReplaceResult struct {
	Deleted domain.Count `json:"deleted_chunks"`
	Method  DeleteMethod `json:"method,omitempty"`
	Stored  int          `json:"stored_chunks"`
}

// Replace deletes a document's old chunks and stores the new ones. The two index calls
// are not atomic: a reader between them sees the document absent, never half-updated.
func (s *Service) Replace(
	ctx context.Context, tenant string, fileRef *int64, filename string, chunks []chunk.Payload,
) (ReplaceResult, error) {
	if _, err := validateStore(tenant, filename, chunks); err != nil {
		return ReplaceResult{}, fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}

	var res ReplaceResult
	if fileRef != nil {
		del, err := s.DeleteByFileRef(ctx, tenant, *fileRef, filename)
		if err != nil {
			return res, fmt.Errorf("replace: %w", err)
		}
		res.Deleted, res.Method = del.Deleted, del.Method
	} else {
		n, err := s.DeleteByFilename(ctx, tenant, filename)
		if err != nil {
			return res, fmt.Errorf("replace: %w", err)
		}
		res.Deleted, res.Method = n, MethodFilename
	}

	stored, err := s.Store(ctx, tenant, fileRef, filename, chunks)
	if err != nil {
		return res, fmt.Errorf("replace: %w", err)
	}
	res.Stored = stored.Stored
	return res, nil
}

// storageErr wraps an index failure as ErrStorage. Cancellation passes through unwrapped
// so callers can tell an abort from a backend fault.
func storageErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, domain.ErrStorage) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorage, err)
}
