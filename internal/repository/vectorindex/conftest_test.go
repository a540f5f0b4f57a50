package vectorindex

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/kailas-cloud/ragstore/internal/db"
	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/search/filter"
)

const testDim = 4

// memStore is an in-memory stand-in for the Redis store. It evaluates tag equality
// and numeric ranges in all filter groups and scores every KNN hit at distance 0.
type memStore struct {
	mu      sync.Mutex
	hashes  map[string]map[string]string
	indexes map[string]*db.IndexDefinition

	createCalls int
	searchErr   error
	delErr      error
}

func newMemStore() *memStore {
	return &memStore{
		hashes:  make(map[string]map[string]string),
		indexes: make(map[string]*db.IndexDefinition),
	}
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) HReplaceMulti(_ context.Context, items []db.HashSetItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		fields := make(map[string]string, len(it.Fields))
		for k, v := range it.Fields {
			fields[k] = v
		}
		m.hashes[it.Key] = fields
	}
	return nil
}

func (m *memStore) DelMulti(_ context.Context, keys []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delErr != nil {
		return 0, m.delErr
	}
	n := 0
	for _, k := range keys {
		if _, ok := m.hashes[k]; ok {
			delete(m.hashes, k)
			n++
		}
	}
	return n, nil
}

func (m *memStore) Scan(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range m.hashes {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func (m *memStore) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if _, ok := m.indexes[def.Name]; ok {
		return db.ErrIndexExists
	}
	m.indexes[def.Name] = def
	return nil
}

func (m *memStore) DropIndex(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indexes[name]; !ok {
		return db.ErrIndexNotFound
	}
	delete(m.indexes, name)
	return nil
}

func (m *memStore) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	entries, err := m.match(q.IndexName, q.Filters)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Score = 1
	}
	return page(entries, 0, q.K), nil
}

func (m *memStore) SearchList(_ context.Context, q *db.ListQuery) (*db.SearchResult, error) {
	entries, err := m.match(q.IndexName, q.Filters)
	if err != nil {
		return nil, err
	}
	if q.SortBy != "" {
		slices.SortStableFunc(entries, func(a, b db.SearchEntry) int {
			x, _ := strconv.ParseFloat(a.Fields[q.SortBy], 64)
			y, _ := strconv.ParseFloat(b.Fields[q.SortBy], 64)
			if q.Descending {
				return cmp.Compare(y, x)
			}
			return cmp.Compare(x, y)
		})
	}
	return page(entries, q.Offset, q.Limit), nil
}

func (m *memStore) SearchKeys(
	_ context.Context, index string, filters filter.Expression, limit int,
) ([]string, error) {
	entries, err := m.match(index, filters)
	if err != nil {
		return nil, err
	}
	res := page(entries, 0, limit)
	keys := make([]string, len(res.Entries))
	for i, e := range res.Entries {
		keys[i] = e.Key
	}
	return keys, nil
}

func (m *memStore) SearchCount(_ context.Context, index string, filters filter.Expression) (int, error) {
	entries, err := m.match(index, filters)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (m *memStore) match(index string, expr filter.Expression) ([]db.SearchEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	def, ok := m.indexes[index]
	if !ok {
		return nil, db.ErrIndexNotFound
	}

	var out []db.SearchEntry
	for key, fields := range m.hashes {
		if !strings.HasPrefix(key, def.Prefixes[0]) || !matches(fields, expr) {
			continue
		}
		cp := make(map[string]string, len(fields))
		for k, v := range fields {
			cp[k] = v
		}
		out = append(out, db.SearchEntry{Key: key, Fields: cp})
	}
	slices.SortFunc(out, func(a, b db.SearchEntry) int { return cmp.Compare(a.Key, b.Key) })
	return out, nil
}

func matches(fields map[string]string, expr filter.Expression) bool {
	for _, c := range expr.Must() {
		if !matchCondition(fields, c) {
			return false
		}
	}
	if should := expr.Should(); len(should) > 0 {
		if !slices.ContainsFunc(should, func(c filter.Condition) bool { return matchCondition(fields, c) }) {
			return false
		}
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
	if c.IsRange() {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return false
		}
		r := c.Range()
		return !((r.GTE() != nil && f < *r.GTE()) || (r.LTE() != nil && f > *r.LTE()) ||
			(r.GT() != nil && f <= *r.GT()) || (r.LT() != nil && f >= *r.LT()))
	}
	return true
}

func page(entries []db.SearchEntry, offset, limit int) *db.SearchResult {
	total := len(entries)
	if offset > len(entries) {
		offset = len(entries)
	}
	end := min(offset+limit, len(entries))
	return &db.SearchResult{Total: total, Entries: entries[offset:end]}
}

// fakeEmbedder returns fixed-size vectors and counts tokens as one per text.
type fakeEmbedder struct {
	dim   int
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	f.calls++
	if f.err != nil {
		return domain.EmbeddingResult{}, f.err
	}
	return domain.EmbeddingResult{Embedding: make([]float32, f.dim), TotalTokens: 1}, nil
}

func (f *fakeEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	f.calls++
	if f.err != nil {
		return domain.BatchEmbeddingResult{}, f.err
	}
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts)), TotalTokens: len(texts)}
	for i := range texts {
		out.Embeddings[i] = make([]float32, f.dim)
	}
	return out, nil
}

func newTestRepo(t *testing.T) (*Repo, *memStore, *fakeEmbedder) {
	t.Helper()
	ms := newMemStore()
	emb := &fakeEmbedder{dim: testDim}
	repo := New(ms, emb, emb, Config{
		KeyPrefix:      "test:",
		VectorDim:      testDim,
		HNSW:           HNSWConfig{M: 16, EFConstruct: 200},
		DeletePageSize: 2,
	}, nil)
	return repo, ms, emb
}
