package chunkstore

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/chunk"
	"github.com/kailas-cloud/ragstore/internal/domain/record"
	"github.com/kailas-cloud/ragstore/internal/domain/search/filter"
	"github.com/kailas-cloud/ragstore/internal/domain/search/hit"
	"github.com/kailas-cloud/ragstore/internal/domain/search/request"
	"github.com/kailas-cloud/ragstore/internal/metrics"
)

// DeleteMethod names how a file's chunks were found and removed.
type DeleteMethod string

// Delete methods.
const (
	MethodByReference      DeleteMethod = "by_reference"
	MethodFilenameFallback DeleteMethod = "filename_fallback"
	MethodNoneFound        DeleteMethod = "none_found"
	MethodFilename         DeleteMethod = "filename"
	MethodNamespaceEmpty   DeleteMethod = "namespace_empty"
	MethodNamespace        DeleteMethod = "namespace_deletion"
)

// DeleteResult reports a file deletion.
type DeleteResult struct {
	Deleted domain.Count `json:"deleted_chunks"`
	Method  DeleteMethod `json:"method"`
	FileRef int64        `json:"db_file_id"`
	// Verified is false when records with the file reference were still found afterwards.
	Verified bool `json:"verified"`
}

// DeleteByFileRef removes a file's chunks by its durable reference, then verifies that
// none remain. Records stored before the reference existed carry only a filename; when
// filenameFallback is set, those legacy records are removed too. Records of the same
// filename that carry any file reference are never touched by the fallback.
//
// When records with the reference survive the delete, its count is discarded: without a
// fallback the result is MethodNoneFound with zero, with one it is MethodFilenameFallback
// counting only the legacy records removed. Verified stays false in both cases.
//
// The whole operation holds one limiter slot. Calling it again after success returns a
// zero count with MethodNoneFound.
func (s *Service) DeleteByFileRef(
	ctx context.Context, tenant string, fileRef int64, filenameFallback string,
) (DeleteResult, error) {
	ns, err := record.Namespace(tenant)
	if err != nil {
		return DeleteResult{}, err
	}
	filenameFallback = strings.TrimSpace(filenameFallback)

	var res DeleteResult
	err = s.withSlot(ctx, "delete_by_file_ref", func(ctx context.Context) error {
		var err error
		res, err = s.deleteByFileRef(ctx, ns, fileRef, filenameFallback)
		return err
	})
	if err != nil {
		s.logger.Error("File deletion failed",
			zap.String("namespace", ns), zap.Int64("db_file_id", fileRef), zap.Error(err))
		return res, storageErr("delete by file reference", err)
	}

	metrics.StoreDeletesTotal.WithLabelValues(string(res.Method)).Inc()
	s.logger.Info("File deleted",
		zap.String("namespace", ns), zap.Int64("db_file_id", fileRef),
		zap.Stringer("deleted", res.Deleted), zap.String("method", string(res.Method)),
		zap.Bool("verified", res.Verified))
	return res, nil
}

func (s *Service) deleteByFileRef(
	ctx context.Context, ns string, fileRef int64, filenameFallback string,
) (DeleteResult, error) {
	res := DeleteResult{FileRef: fileRef, Deleted: domain.KnownCount(0), Method: MethodNoneFound}
	byRef := filter.All(filter.EqualNumber(chunk.KeyFileRef, float64(fileRef)))

	deleted, err := s.index.DeleteByFilter(ctx, ns, byRef)
	if err != nil {
		return res, fmt.Errorf("delete by filter: %w", err)
	}

	remaining, err := s.index.List(ctx, ns, request.List{Filters: byRef, Limit: verifyTopK})
	if err != nil {
		return DeleteResult{FileRef: fileRef, Deleted: deleted, Method: MethodByReference},
			fmt.Errorf("verify delete: %w", err)
	}
	res.Verified = len(remaining) == 0
	if !res.Verified {
		s.logger.Warn("Records remain after delete by reference",
			zap.String("namespace", ns), zap.Int64("db_file_id", fileRef), zap.Int("remaining", len(remaining)))
		// A count from a delete that left records behind is not reported.
		deleted = domain.KnownCount(0)
	}
	n, known := deleted.Value()
	byRefHit := !known || n > 0

	if filenameFallback != "" {
		legacy, err := legacyFilter(filenameFallback)
		if err != nil {
			return res, err
		}
		m, err := s.deleteMatching(ctx, ns, legacy)
		if err != nil {
			return res, fmt.Errorf("filename fallback: %w", err)
		}
		if m > 0 || !res.Verified {
			res.Deleted = deleted.Add(m)
			res.Method = MethodFilenameFallback
			return res, nil
		}
	}

	if byRefHit {
		res.Deleted = deleted
		res.Method = MethodByReference
	}
	return res, nil
}

// legacyFilter selects records of filename that were stored without a file reference.
func legacyFilter(filename string) (filter.Expression, error) {
	return filter.NewExpression(
		[]filter.Condition{filter.Equal(chunk.KeyFilename, filename)},
		nil,
		[]filter.Condition{filter.Exists(chunk.KeyFileRef)},
	)
}

// DeleteByFilename removes every chunk stored under filename, whatever its file reference.
func (s *Service) DeleteByFilename(ctx context.Context, tenant, filename string) (domain.Count, error) {
	ns, err := record.Namespace(tenant)
	if err != nil {
		return domain.Count{}, err
	}
	if strings.TrimSpace(filename) == "" {
		return domain.Count{}, fmt.Errorf("%w: filename is required", domain.ErrInvalidInput)
	}

	var n int
	err = s.withSlot(ctx, "delete_by_filename", func(ctx context.Context) error {
		var err error
		n, err = s.deleteMatching(ctx, ns, filter.All(filter.Equal(chunk.KeyFilename, filename)))
		return err
	})
	if err != nil {
		s.logger.Error("Document deletion failed",
			zap.String("namespace", ns), zap.String("filename", filename), zap.Error(err))
		return domain.KnownCount(n), storageErr("delete by filename", err)
	}

	metrics.StoreDeletesTotal.WithLabelValues(string(MethodFilename)).Inc()
	s.logger.Info("Document deleted",
		zap.String("namespace", ns), zap.String("filename", filename), zap.Int("deleted", n))
	return domain.KnownCount(n), nil
}

// deleteMatching finds matching record ids and deletes them by id, page by page.
func (s *Service) deleteMatching(ctx context.Context, ns string, filters filter.Expression) (int, error) {
	total := 0
	for i := 0; i < maxDeleteRounds; i++ {
		hits, err := s.index.List(ctx, ns, request.List{Filters: filters, Limit: s.cfg.DeletePageSize})
		if err != nil {
			return total, fmt.Errorf("find chunks: %w", err)
		}
		if len(hits) == 0 {
			return total, nil
		}
		n, err := s.index.DeleteByIDs(ctx, ns, hit.IDs(hits))
		total += n
		if err != nil {
			return total, fmt.Errorf("delete %d chunks: %w", len(hits), err)
		}
		if n == 0 || len(hits) < s.cfg.DeletePageSize {
			return total, nil
		}
	}
	return total, fmt.Errorf("chunks still present after %d delete rounds", maxDeleteRounds)
}

// TenantDeleteResult reports a namespace deletion.
type TenantDeleteResult struct {
	Deleted   domain.Count `json:"deleted_vectors"`
	Namespace string       `json:"namespace"`
	Method    DeleteMethod `json:"method"`
}

// DeleteAllForTenant removes the tenant's whole namespace. An absent or empty namespace
// is a zero-count success.
func (s *Service) DeleteAllForTenant(ctx context.Context, tenant string) (TenantDeleteResult, error) {
	ns, err := record.Namespace(tenant)
	if err != nil {
		return TenantDeleteResult{}, err
	}

	res := TenantDeleteResult{Namespace: ns, Deleted: domain.KnownCount(0), Method: MethodNamespaceEmpty}
	err = s.withSlot(ctx, "delete_namespace", func(ctx context.Context) error {
		// The description only feeds the log; the delete below runs either way.
		described := domain.UnknownCount()
		if stats, err := s.index.DescribeNamespace(ctx, ns); err != nil {
			s.logger.Warn("Could not describe namespace", zap.String("namespace", ns), zap.Error(err))
		} else {
			described = domain.KnownCount(stats.RecordCount)
		}

		n, err := s.index.DeleteNamespace(ctx, ns)
		if err != nil {
			return err
		}
		if n > 0 {
			res.Deleted = domain.KnownCount(n)
			res.Method = MethodNamespace
		}
		s.logger.Info("Namespace deleted",
			zap.String("namespace", ns), zap.Stringer("described", described), zap.Int("deleted", n))
		return nil
	})
	if err != nil {
		s.logger.Error("Namespace deletion failed", zap.String("namespace", ns), zap.Error(err))
		return res, storageErr("delete namespace", err)
	}
	metrics.StoreDeletesTotal.WithLabelValues(string(res.Method)).Inc()
	return res, nil
}
