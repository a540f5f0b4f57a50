package request

import (
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/search/filter"
)

func TestNew_Defaults(t *testing.T) {
	r, err := New("  quarterly revenue  ", filter.Expression{}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Query() != "quarterly revenue" {
		t.Errorf("Query() = %q", r.Query())
	}
	if r.TopK() != DefaultTopK {
		t.Errorf("TopK() = %d, want %d", r.TopK(), DefaultTopK)
	}
	if !r.Filters().IsEmpty() {
		t.Error("expected empty filters")
	}
}

func TestNew_ClampsTopK(t *testing.T) {
	r, err := New("q", filter.Expression{}, MaxTopK+500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.TopK() != MaxTopK {
		t.Errorf("TopK() = %d, want %d", r.TopK(), MaxTopK)
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"empty", ""},
		{"whitespace", "   \n\t"},
		{"too long", strings.Repeat("ж", MaxQueryLength+1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.query, filter.Expression{}, 5)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestNew_MaxLengthCountsRunes(t *testing.T) {
	if _, err := New(strings.Repeat("ж", MaxQueryLength), filter.Expression{}, 5); err != nil {
		t.Errorf("query at the rune limit rejected: %v", err)
	}
}
