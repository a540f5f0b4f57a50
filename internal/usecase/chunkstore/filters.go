package chunkstore

import (
	"fmt"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/chunk"
	"github.com/kailas-cloud/ragstore/internal/domain/search/filter"
)

type fieldKind int

const (
	tagField fieldKind = iota
	numericField
)

// filterable lists the indexed record fields a caller may filter on.
var filterable = map[string]fieldKind{
	chunk.KeyFilename:     tagField,
	chunk.KeyDocumentType: tagField,
	chunk.KeyFileRef:      numericField,
	chunk.KeyChunkNumber:  numericField,
	chunk.KeyCreatedUnix:  numericField,
}

// ValidateFilters checks that every condition names an indexed field and that match
// conditions target tags and ranges target numbers.
func ValidateFilters(expr filter.Expression) error {
	for _, c := range expr.Conditions() {
		kind, ok := filterable[c.Key()]
		if !ok {
			return fmt.Errorf("%w: unknown filter field %q", domain.ErrInvalidInput, c.Key())
		}
		if c.IsMatch() && kind != tagField {
			return fmt.Errorf("%w: match filter on numeric field %q", domain.ErrInvalidInput, c.Key())
		}
		if c.IsRange() && kind != numericField {
			return fmt.Errorf("%w: range filter on tag field %q", domain.ErrInvalidInput, c.Key())
		}
	}
	return nil
}
