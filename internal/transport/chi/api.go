package chi

import (
	"github.com/kailas-cloud/ragstore/internal/domain/search/hit"
)

// ErrorCode is the machine-readable error kind in an ErrorResponse.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest             ErrorCode = "bad_request"
	CodeValidationFailed       ErrorCode = "validation_failed"
	CodeUnauthorized           ErrorCode = "unauthorized"
	CodeNotFound               ErrorCode = "not_found"
	CodeRateLimited            ErrorCode = "rate_limited"
	CodeEmbeddingQuotaExceeded ErrorCode = "embedding_quota_exceeded"
	CodeEmbeddingProviderError ErrorCode = "embedding_provider_error"
	CodeStorageUnavailable     ErrorCode = "storage_unavailable"
	CodeTimeout                ErrorCode = "timeout"
	CodeInternalError          ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// IngestRequest is the body of POST and PUT /files.
type IngestRequest struct {
	Filename     string         `json:"filename"`
	FileRef      *int64         `json:"db_file_id,omitempty"`
	DocumentType string         `json:"document_type,omitempty"`
	Text         string         `json:"text"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// RangeFilter bounds a numeric field.
type RangeFilter struct {
	GT  *float64 `json:"gt,omitempty"`
	GTE *float64 `json:"gte,omitempty"`
	LT  *float64 `json:"lt,omitempty"`
	LTE *float64 `json:"lte,omitempty"`
}

// FilterCondition holds either Match or Range.
type FilterCondition struct {
	Key   string       `json:"key"`
	Match *string      `json:"match,omitempty"`
	Range *RangeFilter `json:"range,omitempty"`
}

// FilterExpression combines conditions: all of Must, at least one of Should, none of MustNot.
type FilterExpression struct {
	Must    []FilterCondition `json:"must,omitempty"`
	Should  []FilterCondition `json:"should,omitempty"`
	MustNot []FilterCondition `json:"must_not,omitempty"`
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query   string            `json:"query"`
	TopK    *int              `json:"top_k,omitempty"`
	Filters *FilterExpression `json:"filters,omitempty"`
}

// FileSearchRequest is the body of POST /files/search.
type FileSearchRequest struct {
	Filename string `json:"filename"`
	Query    string `json:"query"`
	TopK     *int   `json:"top_k,omitempty"`
}

// HitListResponse wraps a list of retrieved chunks.
type HitListResponse struct {
	Items []hit.Hit `json:"items"`
	Total int       `json:"total"`
}

// BatchQuery is one entry of a batch search.
type BatchQuery struct {
	ID      string            `json:"id,omitempty"`
	Query   string            `json:"query"`
	TopK    *int              `json:"top_k,omitempty"`
	Filters *FilterExpression `json:"filters,omitempty"`
}

// BatchSearchRequest is the body of POST /batch-search.
type BatchSearchRequest struct {
	Queries []BatchQuery `json:"queries"`
}

// BatchSearchItem is the outcome of one batch query.
type BatchSearchItem struct {
	QueryID string         `json:"query_id"`
	Query   string         `json:"query"`
	Status  string         `json:"status"`
	Hits    []hit.Hit      `json:"hits"`
	Error   *ErrorResponse `json:"error,omitempty"`
}

// BatchSearchResponse keeps the request order.
type BatchSearchResponse struct {
	Items     []BatchSearchItem `json:"items"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
