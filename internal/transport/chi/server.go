package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/batch"
	"github.com/kailas-cloud/ragstore/internal/domain/search/filter"
	"github.com/kailas-cloud/ragstore/internal/domain/search/hit"
	"github.com/kailas-cloud/ragstore/internal/metrics"
	healthuc "github.com/kailas-cloud/ragstore/internal/usecase/health"
	"github.com/kailas-cloud/ragstore/internal/usecase/ingest"
)

// maxBodyBytes caps request bodies; documents arrive as JSON text.
const maxBodyBytes = 16 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves the tenant-scoped chunk API.
type Server struct {
	store         ChunkStore
	ingest        Ingester
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(store ChunkStore, ing Ingester, health HealthChecker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{store: store, ingest: ing, health: health, logger: logger}
	s.errorHandlers = []errorHandler{
		validationHandler,
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded, http.StatusPaymentRequired, CodeEmbeddingQuotaExceeded),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProviderError),
		sentinelHandler(domain.ErrStorage, http.StatusServiceUnavailable, CodeStorageUnavailable),
		sentinelHandler(context.DeadlineExceeded, http.StatusGatewayTimeout, CodeTimeout),
	}
	return s
}

// Handler builds the router with the middleware stack. An empty apiKeys disables auth.
func (s *Server) Handler(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware("/metrics"))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})

	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/tenants/{tenant}", func(r chi.Router) {
		r.Delete("/", s.DeleteTenant)
		r.Post("/search", s.SearchDocuments)
		r.Post("/batch-search", s.BatchSearch)
		r.Get("/stats", s.TenantStats)

		r.Post("/files", s.IngestFile)
		r.Put("/files", s.ReingestFile)
		r.Delete("/files", s.DeleteFileByName)
		r.Post("/files/search", s.SearchFile)
		r.Get("/files/context", s.FileContext)
		r.Get("/files/summary", s.FileSummary)
		r.Delete("/files/{fileRef}", s.DeleteFile)
	})
	return r
}

// IngestFile handles POST /v1/tenants/{tenant}/files.
func (s *Server) IngestFile(w http.ResponseWriter, r *http.Request) {
	s.ingestFile(w, r, s.ingest.Ingest, http.StatusCreated)
}

// ReingestFile handles PUT /v1/tenants/{tenant}/files.
func (s *Server) ReingestFile(w http.ResponseWriter, r *http.Request) {
	s.ingestFile(w, r, s.ingest.Reingest, http.StatusOK)
}

func (s *Server) ingestFile(
	w http.ResponseWriter, r *http.Request,
	run func(context.Context, ingest.Document) (ingest.Result, error), status int,
) {
	var req IngestRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	res, err := run(ctx, ingest.Document{
		Tenant:       chi.URLParam(r, "tenant"),
		FileRef:      req.FileRef,
		Filename:     req.Filename,
		DocumentType: req.DocumentType,
		Text:         req.Text,
		Metadata:     req.Metadata,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, status, res)
}

// SearchDocuments handles POST /v1/tenants/{tenant}/search.
func (s *Server) SearchDocuments(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !s.decode(w, r, &req) {
		return
	}
	filters, err := filtersFromAPI(req.Filters)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	hits, err := s.store.SearchAcrossDocuments(ctx, chi.URLParam(r, "tenant"), req.Query, filters, derefInt(req.TopK))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, hitList(hits))
}

// SearchFile handles POST /v1/tenants/{tenant}/files/search.
func (s *Server) SearchFile(w http.ResponseWriter, r *http.Request) {
	var req FileSearchRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	hits, err := s.store.SearchInFile(ctx, chi.URLParam(r, "tenant"), req.Filename, req.Query, derefInt(req.TopK))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, hitList(hits))
}

// FileContext handles GET /v1/tenants/{tenant}/files/context?filename=&max_chunks=.
func (s *Server) FileContext(w http.ResponseWriter, r *http.Request) {
	maxChunks, err := queryInt(r, "max_chunks")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	hits, err := s.store.GetFileContext(r.Context(), chi.URLParam(r, "tenant"), r.URL.Query().Get("filename"), maxChunks)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hitList(hits))
}

// BatchSearch handles POST /v1/tenants/{tenant}/batch-search.
func (s *Server) BatchSearch(w http.ResponseWriter, r *http.Request) {
	var req BatchSearchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Queries) == 0 || len(req.Queries) > batch.MaxQueries {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			fmt.Sprintf("queries count must be between 1 and %d", batch.MaxQueries))
		return
	}

	queries := make([]batch.Query, len(req.Queries))
	for i, q := range req.Queries {
		filters, err := filtersFromAPI(q.Filters)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidationFailed, fmt.Sprintf("queries[%d]: %v", i, err))
			return
		}
		queries[i] = batch.Query{ID: q.ID, Text: q.Query, TopK: derefInt(q.TopK), Filters: filters}
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	results, err := s.store.BatchSearch(ctx, chi.URLParam(r, "tenant"), queries)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp := BatchSearchResponse{Items: make([]BatchSearchItem, len(results))}
	for i, res := range results {
		resp.Items[i] = s.batchItemToAPI(r, res)
		if res.Status() == batch.StatusOK {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, resp)
}

// DeleteFile handles DELETE /v1/tenants/{tenant}/files/{fileRef}?filename=.
// The optional filename also removes legacy chunks stored without a file reference.
func (s *Server) DeleteFile(w http.ResponseWriter, r *http.Request) {
	fileRef, err := strconv.ParseInt(chi.URLParam(r, "fileRef"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "file reference must be an integer")
		return
	}

	res, err := s.store.DeleteByFileRef(r.Context(), chi.URLParam(r, "tenant"), fileRef, r.URL.Query().Get("filename"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DeleteFileByName handles DELETE /v1/tenants/{tenant}/files?filename=.
func (s *Server) DeleteFileByName(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("filename")
	n, err := s.store.DeleteByFilename(r.Context(), chi.URLParam(r, "tenant"), filename)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted_chunks": n, "filename": filename, "method": "filename"})
}

// DeleteTenant handles DELETE /v1/tenants/{tenant}.
func (s *Server) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	res, err := s.store.DeleteAllForTenant(r.Context(), chi.URLParam(r, "tenant"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// TenantStats handles GET /v1/tenants/{tenant}/stats.
func (s *Server) TenantStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.TenantStats(r.Context(), chi.URLParam(r, "tenant"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// FileSummary handles GET /v1/tenants/{tenant}/files/summary?filename=.
func (s *Server) FileSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.store.DocumentSummary(r.Context(), chi.URLParam(r, "tenant"), r.URL.Query().Get("filename"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// HealthCheck handles GET /health. Only an unreachable index fails the probe.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	status := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, HealthResponse{Status: string(report.Status), Checks: checks})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeBadRequest, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) batchItemToAPI(r *http.Request, res batch.Result) BatchSearchItem {
	item := BatchSearchItem{
		QueryID: res.QueryID(),
		Query:   res.Query(),
		Status:  string(res.Status()),
		Hits:    res.Hits(),
	}
	if err := res.Err(); err != nil {
		s.requestLogger(r).Warn("Batch query failed", zap.String("query_id", res.QueryID()), zap.Error(err))
		item.Error = &ErrorResponse{Code: errorCode(err), Message: safeDomainMessage(err)}
	}
	return item
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	return loggerFromRequest(r, s.logger)
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := s.requestLogger(r)
	for _, h := range s.errorHandlers {
		if h(w, err) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

// validationHandler exposes the full message: it only describes caller input.
func validationHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, domain.ErrInvalidInput) {
		return false
	}
	writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
	return true
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

// safeDomainMessage returns a client-safe message without internals.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidInput) {
		return err.Error()
	}
	for _, s := range []error{
		domain.ErrNotFound,
		domain.ErrEmbeddingQuotaExceeded,
		domain.ErrRateLimited,
		domain.ErrEmbeddingProviderError,
		domain.ErrStorage,
		context.DeadlineExceeded,
	} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func errorCode(err error) ErrorCode {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return CodeValidationFailed
	case errors.Is(err, domain.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, domain.ErrEmbeddingQuotaExceeded):
		return CodeEmbeddingQuotaExceeded
	case errors.Is(err, domain.ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, domain.ErrEmbeddingProviderError):
		return CodeEmbeddingProviderError
	case errors.Is(err, domain.ErrStorage):
		return CodeStorageUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	default:
		return CodeInternalError
	}
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage.Used() {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens()))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

func filtersFromAPI(f *FilterExpression) (filter.Expression, error) {
	if f == nil {
		return filter.Expression{}, nil
	}

	must, err := conditionsFromAPI(f.Must)
	if err != nil {
		return filter.Expression{}, err
	}
	should, err := conditionsFromAPI(f.Should)
	if err != nil {
		return filter.Expression{}, err
	}
	mustNot, err := conditionsFromAPI(f.MustNot)
	if err != nil {
		return filter.Expression{}, err
	}

	expr, err := filter.NewExpression(must, should, mustNot)
	if err != nil {
		return filter.Expression{}, fmt.Errorf("new expression: %w", err)
	}
	return expr, nil
}

func conditionsFromAPI(cs []FilterCondition) ([]filter.Condition, error) {
	out := make([]filter.Condition, 0, len(cs))
	for _, c := range cs {
		cond, err := conditionFromAPI(c)
		if err != nil {
			return nil, err
		}
		out = append(out, cond)
	}
	return out, nil
}

func conditionFromAPI(c FilterCondition) (filter.Condition, error) {
	switch {
	case c.Match != nil && c.Range != nil:
		return filter.Condition{}, fmt.Errorf("filter condition for %q must have match or range, not both", c.Key)
	case c.Match != nil:
		cond, err := filter.NewMatch(c.Key, *c.Match)
		if err != nil {
			return filter.Condition{}, fmt.Errorf("match filter: %w", err)
		}
		return cond, nil
	case c.Range != nil:
		rf, err := filter.NewRangeFilter(c.Range.GT, c.Range.GTE, c.Range.LT, c.Range.LTE)
		if err != nil {
			return filter.Condition{}, fmt.Errorf("range filter: %w", err)
		}
		cond, err := filter.NewRange(c.Key, rf)
		if err != nil {
			return filter.Condition{}, fmt.Errorf("range condition: %w", err)
		}
		return cond, nil
	default:
		return filter.Condition{}, errors.New("filter condition must have either match or range")
	}
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// hitList keeps the JSON array non-null.
func hitList(hits []hit.Hit) HitListResponse {
	if hits == nil {
		hits = []hit.Hit{}
	}
	return HitListResponse{Items: hits, Total: len(hits)}
}
