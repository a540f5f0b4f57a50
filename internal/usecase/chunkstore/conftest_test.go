package chunkstore

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/chunk"
	"github.com/kailas-cloud/ragstore/internal/domain/record"
	"github.com/kailas-cloud/ragstore/internal/domain/search/filter"
	"github.com/kailas-cloud/ragstore/internal/domain/search/hit"
	"github.com/kailas-cloud/ragstore/internal/domain/search/request"
)

var errIndexDown = errors.New("index unavailable")

// fakeIndex keeps records per namespace in memory. Hooks let tests fail or block calls.
type fakeIndex struct {
	mu         sync.Mutex
	namespaces map[string]map[string]record.Record

	upsertErr    error
	deleteErr    error
	describeErr  error
	unknownCount bool
	// keepOnFilterDelete makes DeleteByFilter report matches without removing them.
	keepOnFilterDelete bool
	// searchHook runs inside Search before results are computed.
	searchHook func(ctx context.Context, query string) error

	upserts  int
	searches int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{namespaces: make(map[string]map[string]record.Record)}
}

func (f *fakeIndex) Ping(context.Context) error { return nil }

func (f *fakeIndex) Upsert(_ context.Context, ns string, records []record.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if f.namespaces[ns] == nil {
		f.namespaces[ns] = make(map[string]record.Record)
	}
	for _, r := range records {
		f.namespaces[ns][r.ID] = r
	}
	return nil
}

func (f *fakeIndex) Search(
	ctx context.Context, ns, query string, topK int, filters filter.Expression,
) ([]hit.Hit, error) {
	f.mu.Lock()
	f.searches++
	hook := f.searchHook
	f.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, query); err != nil {
			return nil, err
		}
	}

	hits := f.match(ns, filters)
	// Later chunks score higher so callers must re-rank.
	for i := range hits {
		hits[i].Score = float64(hits[i].SequenceNumber) / 100
	}
	return hits[:min(topK, len(hits))], nil
}

func (f *fakeIndex) List(_ context.Context, ns string, opts request.List) ([]hit.Hit, error) {
	hits := f.match(ns, opts.Filters)
	if opts.SortBy == chunk.KeyChunkNumber {
		slices.SortStableFunc(hits, func(a, b hit.Hit) int {
			if opts.Descending {
				return cmp.Compare(b.SequenceNumber, a.SequenceNumber)
			}
			return cmp.Compare(a.SequenceNumber, b.SequenceNumber)
		})
	} else {
		// Unsorted listing comes back in an arbitrary order.
		slices.Reverse(hits)
	}
	return hits[:min(opts.Limit, len(hits))], nil
}

func (f *fakeIndex) DeleteByIDs(_ context.Context, ns string, ids []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	n := 0
	for _, id := range ids {
		if _, ok := f.namespaces[ns][id]; ok {
			delete(f.namespaces[ns], id)
			n++
		}
	}
	return n, nil
}

func (f *fakeIndex) DeleteByFilter(_ context.Context, ns string, filters filter.Expression) (domain.Count, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return domain.Count{}, f.deleteErr
	}
	n := 0
	for id, r := range f.namespaces[ns] {
		if matches(recordFields(&r), filters) {
			if !f.keepOnFilterDelete {
				delete(f.namespaces[ns], id)
			}
			n++
		}
	}
	if f.unknownCount {
		return domain.UnknownCount(), nil
	}
	return domain.KnownCount(n), nil
}

func (f *fakeIndex) DeleteNamespace(_ context.Context, ns string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	n := len(f.namespaces[ns])
	delete(f.namespaces, ns)
	return n, nil
}

func (f *fakeIndex) DescribeNamespace(_ context.Context, ns string) (record.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.describeErr != nil {
		return record.Stats{}, f.describeErr
	}
	return record.Stats{RecordCount: len(f.namespaces[ns])}, nil
}

func (f *fakeIndex) count(ns string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.namespaces[ns])
}

func (f *fakeIndex) ids(ns string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.namespaces[ns]))
	for id := range f.namespaces[ns] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (f *fakeIndex) match(ns string, filters filter.Expression) []hit.Hit {
	f.mu.Lock()
	defer f.mu.Unlock()
	var hits []hit.Hit
	for _, r := range f.namespaces[ns] {
		if !matches(recordFields(&r), filters) {
			continue
		}
		hits = append(hits, hit.Hit{
			ID:             r.ID,
			Text:           r.Chunk.Text,
			Filename:       r.Filename,
			SequenceNumber: r.Chunk.SequenceNumber,
			DocumentType:   r.Chunk.DocumentType,
			CreatedAt:      r.CreatedAt.Format(time.RFC3339),
			FileRef:        r.FileRef,
		})
	}
	slices.SortFunc(hits, func(a, b hit.Hit) int { return cmp.Compare(a.ID, b.ID) })
	if hits == nil {
		hits = []hit.Hit{}
	}
	return hits
}

func recordFields(r *record.Record) map[string]string {
	m := map[string]string{
		chunk.KeyFilename:     r.Filename,
		chunk.KeyDocumentType: r.Chunk.DocumentType,
		chunk.KeyChunkNumber:  strconv.Itoa(r.Chunk.SequenceNumber),
		chunk.KeyCreatedUnix:  strconv.FormatInt(r.CreatedAt.Unix(), 10),
	}
	if r.FileRef != nil {
		m[chunk.KeyFileRef] = strconv.FormatInt(*r.FileRef, 10)
	}
	return m
}

func matches(fields map[string]string, expr filter.Expression) bool {
	for _, c := range expr.Must() {
		if !matchCondition(fields, c) {
			return false
		}
	}
	if should := expr.Should(); len(should) > 0 &&
		!slices.ContainsFunc(should, func(c filter.Condition) bool { return matchCondition(fields, c) }) {
		return false
	}
	for _, c := range expr.MustNot() {
		if matchCondition(fields, c) {
			return false
		}
	}
	return true
}

func matchCondition(fields map[string]string, c filter.Condition) bool {
	v, ok := fields[c.Key()]
	if !ok {
		return false
	}
	if c.IsMatch() {
		return v == c.Match()
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return false
	}
	r := c.Range()
	return !((r.GTE() != nil && f < *r.GTE()) || (r.LTE() != nil && f > *r.LTE()) ||
		(r.GT() != nil && f <= *r.GT()) || (r.LT() != nil && f >= *r.LT()))
}

var fixedNow = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, cfg Config) (*Service, *fakeIndex) {
	t.Helper()
	idx := newFakeIndex()
	svc := New(idx, cfg, nil)
	svc.now = func() time.Time { return fixedNow }
	return svc, idx
}

func payloads(n int, docType string) []chunk.Payload {
	out := make([]chunk.Payload, n)
	for i := range out {
		out[i] = chunk.Payload{
			Text:           "chunk " + strconv.Itoa(i+1),
			SequenceNumber: i + 1,
			DocumentType:   docType,
		}
	}
	return out
}

func ref(v int64) *int64 { return &v }
