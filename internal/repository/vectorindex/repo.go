package vectorindex

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstore/internal/db"
	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/chunk"
	"github.com/kailas-cloud/ragstore/internal/domain/record"
	"github.com/kailas-cloud/ragstore/internal/domain/search/filter"
	"github.com/kailas-cloud/ragstore/internal/domain/search/hit"
	"github.com/kailas-cloud/ragstore/internal/domain/search/request"
)

const (
	defaultDeletePageSize = 1000
	// maxDeletePages stops a filtered delete that keeps finding keys it cannot remove.
	maxDeletePages = 1000
)

// store is the consumer interface for chunk records (ISP).
type store interface {
	Ping(ctx context.Context) error
	HReplaceMulti(ctx context.Context, items []db.HashSetItem) error
	DelMulti(ctx context.Context, keys []string) (int, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchList(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error)
	SearchKeys(ctx context.Context, index string, filters filter.Expression, limit int) ([]string, error)
	SearchCount(ctx context.Context, index string, filters filter.Expression) (int, error)
}

// Config holds index layout parameters.
type Config struct {
	KeyPrefix      string
	VectorDim      int
	HNSW           HNSWConfig
	DeletePageSize int
}

// Repo stores chunk records in one FT index per tenant namespace.
type Repo struct {
	store         store
	docEmbedder   domain.BatchEmbedder
	queryEmbedder domain.Embedder
	cfg           Config
	logger        *zap.Logger
}

// New creates a vector index repository. Documents and queries are embedded separately
// because asymmetric models use different instructions for each.
func New(
	s store,
	docEmbedder domain.BatchEmbedder,
	queryEmbedder domain.Embedder,
	cfg Config,
	logger *zap.Logger,
) *Repo {
	if cfg.DeletePageSize <= 0 {
		cfg.DeletePageSize = defaultDeletePageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{
		store:         s,
		docEmbedder:   docEmbedder,
		queryEmbedder: queryEmbedder,
		cfg:           cfg,
		logger:        logger.Named("vectorindex"),
	}
}

// Ping checks the index backend.
func (r *Repo) Ping(ctx context.Context) error {
	if err := r.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping index: %w", err)
	}
	return nil
}

// Upsert embeds the records and writes them with one pipelined round-trip.
// Writing a record id again replaces the old record entirely.
func (r *Repo) Upsert(ctx context.Context, namespace string, records []record.Record) error {
	if len(records) == 0 {
		return nil
	}
	ks := newKeyspace(r.cfg.KeyPrefix, namespace)

	if err := r.ensureIndex(ctx, ks); err != nil {
		return err
	}

	texts := make([]string, len(records))
	for i := range records {
		texts[i] = records[i].Chunk.Text
	}
	emb, err := r.docEmbedder.BatchEmbed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %d chunks: %w", len(texts), err)
	}
	if len(emb.Embeddings) != len(records) {
		return fmt.Errorf("%w: got %d embeddings for %d chunks",
			domain.ErrEmbeddingProviderError, len(emb.Embeddings), len(records))
	}
	domain.UsageFromContext(ctx).AddTokens(emb.TotalTokens)

	items := make([]db.HashSetItem, len(records))
	for i := range records {
		if err := r.checkDim(emb.Embeddings[i]); err != nil {
			return err
		}
		items[i] = db.HashSetItem{
			Key:    ks.key(records[i].ID),
			Fields: buildHashFields(&records[i], emb.Embeddings[i]),
		}
	}

	if err := r.store.HReplaceMulti(ctx, items); err != nil {
		return fmt.Errorf("write %d records: %w", len(items), err)
	}
	return nil
}

func (r *Repo) ensureIndex(ctx context.Context, ks keyspace) error {
	def, err := buildIndex(ks, r.cfg.VectorDim, r.cfg.HNSW)
	if err != nil {
		return fmt.Errorf("build index definition: %w", err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create index %s: %w", ks.index, err)
	}
	r.logger.Info("Namespace index created", zap.String("index", ks.index), zap.Stringer("schema", def))
	return nil
}

func (r *Repo) checkDim(v []float32) error {
	if len(v) != r.cfg.VectorDim {
		return fmt.Errorf("%w: embedding has %d dimensions, index expects %d",
			domain.ErrEmbeddingProviderError, len(v), r.cfg.VectorDim)
	}
	return nil
}

// Search ranks records by similarity to query within one namespace. An empty query
// lists filtered records in document order instead. An absent namespace has no hits.
func (r *Repo) Search(
	ctx context.Context, namespace, query string, topK int, filters filter.Expression,
) ([]hit.Hit, error) {
	if query == "" {
		return r.List(ctx, namespace, request.List{Filters: filters, Limit: topK, SortBy: chunk.KeyChunkNumber})
	}

	ks := newKeyspace(r.cfg.KeyPrefix, namespace)

	emb, err := r.queryEmbedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	domain.UsageFromContext(ctx).AddTokens(emb.TotalTokens)
	if err := r.checkDim(emb.Embedding); err != nil {
		return nil, err
	}

	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    ks.index,
		Filters:      filters,
		Vector:       emb.Embedding,
		K:            topK,
		ReturnFields: returnFields,
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return []hit.Hit{}, nil
		}
		return nil, fmt.Errorf("search knn %s: %w", ks.index, err)
	}
	return toHits(ks, sr), nil
}

// List returns filtered records without ranking.
func (r *Repo) List(ctx context.Context, namespace string, opts request.List) ([]hit.Hit, error) {
	ks := newKeyspace(r.cfg.KeyPrefix, namespace)

	sr, err := r.store.SearchList(ctx, &db.ListQuery{
		IndexName:    ks.index,
		Filters:      opts.Filters,
		Limit:        opts.Limit,
		SortBy:       opts.SortBy,
		Descending:   opts.Descending,
		ReturnFields: returnFields,
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return []hit.Hit{}, nil
		}
		return nil, fmt.Errorf("search list %s: %w", ks.index, err)
	}
	return toHits(ks, sr), nil
}

// Count returns how many records match filters. An absent namespace counts zero.
func (r *Repo) Count(ctx context.Context, namespace string, filters filter.Expression) (int, error) {
	ks := newKeyspace(r.cfg.KeyPrefix, namespace)
	n, err := r.store.SearchCount(ctx, ks.index, filters)
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("search count %s: %w", ks.index, err)
	}
	return n, nil
}

// DeleteByIDs removes records by id and returns how many existed.
func (r *Repo) DeleteByIDs(ctx context.Context, namespace string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ks := newKeyspace(r.cfg.KeyPrefix, namespace)
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = ks.key(id)
	}
	n, err := r.store.DelMulti(ctx, keys)
	if err != nil {
		return n, fmt.Errorf("delete %d records: %w", len(keys), err)
	}
	return n, nil
}

// DeleteByFilter removes every record matching filters, a page of keys at a time.
// The count is exact: keys are resolved before they are deleted.
func (r *Repo) DeleteByFilter(
	ctx context.Context, namespace string, filters filter.Expression,
) (domain.Count, error) {
	ks := newKeyspace(r.cfg.KeyPrefix, namespace)

	total := 0
	for page := 0; page < maxDeletePages; page++ {
		keys, err := r.store.SearchKeys(ctx, ks.index, filters, r.cfg.DeletePageSize)
		if err != nil {
			if errors.Is(err, db.ErrIndexNotFound) {
				return domain.KnownCount(total), nil
			}
			return domain.KnownCount(total), fmt.Errorf("search keys %s: %w", ks.index, err)
		}
		if len(keys) == 0 {
			return domain.KnownCount(total), nil
		}

		n, err := r.store.DelMulti(ctx, keys)
		total += n
		if err != nil {
			return domain.KnownCount(total), fmt.Errorf("delete %d records: %w", len(keys), err)
		}
		if n == 0 {
			// The index still lists keys that no longer exist; nothing left to remove.
			r.logger.Warn("Index returned already-deleted keys",
				zap.String("index", ks.index), zap.Int("keys", len(keys)))
			return domain.KnownCount(total), nil
		}
	}
	return domain.KnownCount(total), fmt.Errorf("delete by filter %s: gave up after %d pages", ks.index, maxDeletePages)
}

// DeleteNamespace removes every record of the namespace and drops its index.
// Returns the number of records removed; an absent namespace removes zero.
func (r *Repo) DeleteNamespace(ctx context.Context, namespace string) (int, error) {
	ks := newKeyspace(r.cfg.KeyPrefix, namespace)

	keys, err := r.store.Scan(ctx, ks.chunkPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", ks.chunkPrefix, err)
	}

	deleted := 0
	for start := 0; start < len(keys); start += r.cfg.DeletePageSize {
		end := min(start+r.cfg.DeletePageSize, len(keys))
		n, err := r.store.DelMulti(ctx, keys[start:end])
		deleted += n
		if err != nil {
			return deleted, fmt.Errorf("delete namespace records: %w", err)
		}
	}

	if err := r.store.DropIndex(ctx, ks.index); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return deleted, fmt.Errorf("drop index %s: %w", ks.index, err)
	}
	return deleted, nil
}

// DescribeNamespace reports the record count. An absent namespace has zero records.
func (r *Repo) DescribeNamespace(ctx context.Context, namespace string) (record.Stats, error) {
	n, err := r.Count(ctx, namespace, filter.Expression{})
	if err != nil {
		return record.Stats{}, err
	}
	return record.Stats{RecordCount: n}, nil
}

func toHits(ks keyspace, sr *db.SearchResult) []hit.Hit {
	if sr == nil {
		return []hit.Hit{}
	}
	hits := make([]hit.Hit, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		hits = append(hits, parseHit(ks.recordID(e.Key), e.Score, e.Fields))
	}
	return hits
}
