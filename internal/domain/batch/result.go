package batch

import (
	"github.com/google/uuid"

	"github.com/kailas-cloud/ragstore/internal/domain/search/filter"
	"github.com/kailas-cloud/ragstore/internal/domain/search/hit"
)

// MaxQueries bounds a single batch.
const MaxQueries = 100

// ItemStatus is the processing outcome of a single batch item.
type ItemStatus string

// Batch item status values.
const (
	StatusOK    ItemStatus = "ok"
	StatusError ItemStatus = "error"
)

// Query is one entry of a batch search.
type Query struct {
	ID      string
	Text    string
	TopK    int
	Filters filter.Expression
}

// WithDefaultID returns q with a generated id when the caller gave none.
func (q Query) WithDefaultID() Query {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return q
}

// Result is the outcome of one query in a batch. A failed query carries its error and no hits.
type Result struct {
	queryID string
	query   string
	hits    []hit.Hit
	err     error
}

// NewOK creates a successful batch result.
func NewOK(q Query, hits []hit.Hit) Result {
	if hits == nil {
		hits = []hit.Hit{}
	}
	return Result{queryID: q.ID, query: q.Text, hits: hits}
}

// NewError creates a failed batch result.
func NewError(q Query, err error) Result {
	return Result{queryID: q.ID, query: q.Text, hits: []hit.Hit{}, err: err}
}

// QueryID returns the caller-supplied or generated query id.
func (r Result) QueryID() string { return r.queryID }

// Query returns the query text.
func (r Result) Query() string { return r.query }

// Hits returns the hits; empty, never nil.
func (r Result) Hits() []hit.Hit { return r.hits }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus {
	if r.err != nil {
		return StatusError
	}
	return StatusOK
}

// Err returns the error, if any.
func (r Result) Err() error { return r.err }
