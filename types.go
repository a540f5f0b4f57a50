package ragstore

import (
	"fmt"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/batch"
	"github.com/kailas-cloud/ragstore/internal/domain/chunk"
	"github.com/kailas-cloud/ragstore/internal/domain/search/filter"
	"github.com/kailas-cloud/ragstore/internal/domain/search/hit"
	"github.com/kailas-cloud/ragstore/internal/usecase/chunkstore"
	healthuc "github.com/kailas-cloud/ragstore/internal/usecase/health"
	"github.com/kailas-cloud/ragstore/internal/usecase/ingest"
)

// Result types shared with the HTTP API.
type (
	Hit                = hit.Hit
	IngestResult       = ingest.Result
	DeleteResult       = chunkstore.DeleteResult
	TenantDeleteResult = chunkstore.TenantDeleteResult
	TenantStats        = chunkstore.TenantStats
	DocumentSummary    = chunkstore.DocumentSummary
	Count              = domain.Count
	HealthReport       = healthuc.Report
)

// Filterable chunk keys. Filename and document type take Match, the rest take Range.
const (
	KeyFilename     = chunk.KeyFilename
	KeyDocumentType = chunk.KeyDocumentType
	KeyChunkNumber  = chunk.KeyChunkNumber
	KeyFileRef      = chunk.KeyFileRef
	KeyCreatedUnix  = chunk.KeyCreatedUnix
)

// Document is one text to ingest.
type Document struct {
	Filename     string
	FileRef      *int64
	DocumentType string
	Text         string
	// Metadata is copied into every chunk. Values must be strings, numbers or booleans.
	Metadata map[string]any
}

// FilterExpression restricts a search by chunk metadata.
type FilterExpression struct {
	Must    []FilterCondition
	Should  []FilterCondition
	MustNot []FilterCondition
}

// FilterCondition is a tag match or a numeric range on one key.
type FilterCondition struct {
	Key   string
	Match string
	Range *RangeFilter
}

// RangeFilter bounds a numeric key. gt/gte and lt/lte are mutually exclusive.
type RangeFilter struct {
	GT  *float64
	GTE *float64
	LT  *float64
	LTE *float64
}

// Match is shorthand for a must-match expression on one key.
func Match(key, value string) FilterExpression {
	return FilterExpression{Must: []FilterCondition{{Key: key, Match: value}}}
}

// SearchOptions configures a search across a tenant's documents.
type SearchOptions struct {
	Filters FilterExpression
	TopK    int
}

// BatchQuery is one entry of a batch search. An empty ID is generated.
type BatchQuery struct {
	ID      string
	Query   string
	TopK    int
	Filters FilterExpression
}

// BatchResult is the outcome of one batch query. Err is set when it failed.
type BatchResult struct {
	QueryID string
	Query   string
	Hits    []Hit
	Err     error
}

func toInternalDocument(tenant string, d Document) ingest.Document {
	return ingest.Document{
		Tenant:       tenant,
		FileRef:      d.FileRef,
		Filename:     d.Filename,
		DocumentType: d.DocumentType,
		Text:         d.Text,
		Metadata:     d.Metadata,
	}
}

func toInternalFilters(fe FilterExpression) (filter.Expression, error) {
	must, err := toConditions(fe.Must)
	if err != nil {
		return filter.Expression{}, fmt.Errorf("filter must: %w", err)
	}
	should, err := toConditions(fe.Should)
	if err != nil {
		return filter.Expression{}, fmt.Errorf("filter should: %w", err)
	}
	mustNot, err := toConditions(fe.MustNot)
	if err != nil {
		return filter.Expression{}, fmt.Errorf("filter must_not: %w", err)
	}
	expr, err := filter.NewExpression(must, should, mustNot)
	if err != nil {
		return filter.Expression{}, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	return expr, nil
}

func toConditions(conds []FilterCondition) ([]filter.Condition, error) {
	if len(conds) == 0 {
		return nil, nil
	}
	out := make([]filter.Condition, len(conds))
	for i, c := range conds {
		var err error
		if c.Range != nil {
			r, rerr := filter.NewRangeFilter(c.Range.GT, c.Range.GTE, c.Range.LT, c.Range.LTE)
			if rerr != nil {
				return nil, fmt.Errorf("%w: filter %q: %w", domain.ErrInvalidInput, c.Key, rerr)
			}
			out[i], err = filter.NewRange(c.Key, r)
		} else {
			out[i], err = filter.NewMatch(c.Key, c.Match)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: filter %q: %w", domain.ErrInvalidInput, c.Key, err)
		}
	}
	return out, nil
}

func toInternalQueries(qs []BatchQuery) ([]batch.Query, error) {
	out := make([]batch.Query, len(qs))
	for i, q := range qs {
		filters, err := toInternalFilters(q.Filters)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
		out[i] = batch.Query{ID: q.ID, Text: q.Query, TopK: q.TopK, Filters: filters}
	}
	return out, nil
}

func fromBatchResults(results []batch.Result) []BatchResult {
	out := make([]BatchResult, len(results))
	for i, r := range results {
		out[i] = BatchResult{
			QueryID: r.QueryID(),
			Query:   r.Query(),
			Hits:    r.Hits(),
			Err:     r.Err(),
		}
	}
	return out
}
