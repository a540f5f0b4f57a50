package request

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/search/filter"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum query length in characters.
	MaxQueryLength = 4096
	// DefaultTopK applies when the caller passes topK <= 0.
	DefaultTopK = 10
	// MaxTopK bounds a single search. Listing operations use their own limits.
	MaxTopK = 1000
)

// Request is a validated similarity query.
type Request struct {
	query   string
	filters filter.Expression
	topK    int
}

// New validates and normalizes search parameters. topK <= 0 becomes DefaultTopK,
// topK above MaxTopK is clamped.
func New(query string, filters filter.Expression, topK int) (Request, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Request{}, fmt.Errorf("%w: query is required", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("%w: query too long (max %d chars)", domain.ErrInvalidInput, MaxQueryLength)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	return Request{query: query, filters: filters, topK: topK}, nil
}

// Query returns the trimmed query text.
func (r *Request) Query() string { return r.query }

// Filters returns the metadata pre-filter.
func (r *Request) Filters() filter.Expression { return r.filters }

// TopK returns the number of hits to retrieve.
func (r *Request) TopK() int { return r.topK }

// List selects records without a query vector.
type List struct {
	Filters    filter.Expression
	Limit      int
	SortBy     string
	Descending bool
}
