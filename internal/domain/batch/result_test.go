package batch

import (
	"errors"
	"testing"

	"github.com/kailas-cloud/ragstore/internal/domain/search/hit"
)

func TestNewOK(t *testing.T) {
	q := Query{ID: "q1", Text: "invoices"}
	r := NewOK(q, []hit.Hit{{ID: "file_1#chunk1"}})
	if r.QueryID() != "q1" || r.Query() != "invoices" {
		t.Errorf("unexpected identity %q/%q", r.QueryID(), r.Query())
	}
	if r.Status() != StatusOK || r.Err() != nil {
		t.Errorf("Status() = %q, Err() = %v", r.Status(), r.Err())
	}
	if len(r.Hits()) != 1 {
		t.Errorf("Hits() len = %d", len(r.Hits()))
	}
}

func TestNewOK_NilHitsBecomeEmpty(t *testing.T) {
	r := NewOK(Query{ID: "q"}, nil)
	if r.Hits() == nil {
		t.Error("Hits() should be empty, not nil")
	}
}

func TestNewError(t *testing.T) {
	cause := errors.New("index unavailable")
	r := NewError(Query{ID: "q4", Text: "broken"}, cause)
	if r.Status() != StatusError {
		t.Errorf("Status() = %q", r.Status())
	}
	if !errors.Is(r.Err(), cause) {
		t.Errorf("Err() = %v", r.Err())
	}
	if r.Hits() == nil || len(r.Hits()) != 0 {
		t.Errorf("failed result must carry empty hits, got %v", r.Hits())
	}
}

func TestQuery_WithDefaultID(t *testing.T) {
	a := Query{Text: "x"}.WithDefaultID()
	b := Query{Text: "x"}.WithDefaultID()
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected distinct generated ids, got %q and %q", a.ID, b.ID)
	}
	if got := (Query{ID: "mine"}).WithDefaultID().ID; got != "mine" {
		t.Errorf("caller id overwritten: %q", got)
	}
}
