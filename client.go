package ragstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstore/internal/db"
	dbRedis "github.com/kailas-cloud/ragstore/internal/db/redis"
	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/metrics"
	budgetrepo "github.com/kailas-cloud/ragstore/internal/repository/budget"
	"github.com/kailas-cloud/ragstore/internal/repository/embcache"
	"github.com/kailas-cloud/ragstore/internal/repository/vectorindex"
	"github.com/kailas-cloud/ragstore/internal/segmenter"
	chiTransport "github.com/kailas-cloud/ragstore/internal/transport/chi"
	openaiEmb "github.com/kailas-cloud/ragstore/internal/transport/openai"
	"github.com/kailas-cloud/ragstore/internal/usecase/chunkstore"
	embeddinguc "github.com/kailas-cloud/ragstore/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/ragstore/internal/usecase/health"
	"github.com/kailas-cloud/ragstore/internal/usecase/ingest"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultKeyPrefix        = "ragstore:"
	defaultVectorDimensions = 1536
	defaultHNSWM            = 16
	defaultHNSWEFConstruct  = 200
	defaultOpenAIModel      = "text-embedding-3-small"
)

// Client is the ragstore entry point. It owns the database connection.
type Client struct {
	store  db.Store
	chunks *chunkstore.Service
	ingest *ingest.Service
	health *healthuc.Service
	logger *zap.Logger
}

// New creates a Client, connects to Redis and waits until it answers.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		keyPrefix:        defaultKeyPrefix,
		vectorDimensions: defaultVectorDimensions,
		readinessTimeout: defaultReadinessTimeout,
	}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.embedder == nil && cfg.openai == nil {
		return nil, errors.New("ragstore: embedder required (use WithOpenAI or WithEmbedder)")
	}

	store := cfg.store
	if store == nil {
		if len(cfg.addrs) == 0 {
			return nil, errors.New("ragstore: database address required (use WithRedis)")
		}
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.addrs,
			Username: cfg.username,
			Password: cfg.password,
			DB:       cfg.db,
		})
		if err != nil {
			return nil, fmt.Errorf("ragstore: create redis store: %w", err)
		}
		if err := s.WaitForReady(context.Background(), cfg.readinessTimeout); err != nil {
			s.Close()
			return nil, fmt.Errorf("ragstore: database not ready: %w", err)
		}
		store = s
	}

	c, err := wireClient(store, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

func wireClient(store db.Store, cfg *clientConfig) (*Client, error) {
	logger := cfg.logger

	seg, err := segmenter.New(chunkingConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("ragstore: %w", err)
	}

	emb, err := buildEmbedders(store, cfg)
	if err != nil {
		return nil, err
	}

	hnsw := vectorindex.HNSWConfig{M: cfg.hnswM, EFConstruct: cfg.hnswEFConstruct}
	if hnsw.M <= 0 {
		hnsw.M = defaultHNSWM
	}
	if hnsw.EFConstruct <= 0 {
		hnsw.EFConstruct = defaultHNSWEFConstruct
	}
	index := vectorindex.New(store, emb.document, emb.query, vectorindex.Config{
		KeyPrefix:      cfg.keyPrefix,
		VectorDim:      cfg.vectorDimensions,
		HNSW:           hnsw,
		DeletePageSize: cfg.deletePageSize,
	}, logger)

	chunks := chunkstore.New(index, chunkstore.Config{
		MaxConcurrentCalls: cfg.maxConcurrentCalls,
		SearchTopK:         cfg.searchTopK,
		AcrossTopK:         cfg.acrossTopK,
		ContextMaxChunks:   cfg.contextMaxChunks,
		StatsLimit:         cfg.statsLimit,
		DeletePageSize:     cfg.deletePageSize,
	}, logger)

	// Pass a nil interface, not a typed nil pointer, when no budget is set.
	var budget healthuc.BudgetReader
	if emb.budget != nil {
		budget = emb.budget
	}

	return &Client{
		store:  store,
		chunks: chunks,
		ingest: ingest.New(seg, chunks, logger),
		health: healthuc.New(chunks, emb.health, budget, logger),
		logger: logger,
	}, nil
}

func chunkingConfig(cfg *clientConfig) segmenter.Config {
	sc := segmenter.DefaultConfig()
	if cfg.chunkSize > 0 {
		sc.ChunkSize = cfg.chunkSize
	}
	if cfg.overlapSize > 0 {
		sc.OverlapSize = cfg.overlapSize
	}
	if cfg.minChunkSize > 0 {
		sc.MinChunkSize = cfg.minChunkSize
	}
	return sc
}

type embedders struct {
	document domain.BatchEmbedder
	query    domain.Embedder
	health   healthuc.EmbeddingChecker
	budget   *embeddinguc.BudgetTracker
}

// buildEmbedders assembles the decorator chain: provider -> cache -> instrumented -> instruction.
// The instruction is outermost, so cache keys include it.
func buildEmbedders(store db.Store, cfg *clientConfig) (embedders, error) {
	logger := cfg.logger
	provider := cfg.provider

	var (
		base  domain.Embedder
		model string
		out   embedders
	)
	switch {
	case cfg.embedder != nil:
		adapter := &embedderAdapter{inner: cfg.embedder}
		base, out.health, model = adapter, adapter, provider
	default:
		model = cfg.openai.model
		if model == "" {
			model = defaultOpenAIModel
		}
		if provider == "" {
			provider = "openai"
		}
		oe := openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     cfg.openai.apiKey,
			BaseURL:    cfg.openai.baseURL,
			Model:      model,
			Dimensions: cfg.vectorDimensions,
			Provider:   provider,
			Timeout:    cfg.openai.timeout,
			Logger:     logger,
		})
		base, out.health = oe, oe
	}

	if cfg.cacheEnabled {
		base = embcache.New(base, store, embcache.Config{
			KeyPrefix: cfg.keyPrefix,
			Model:     model,
			TTL:       cfg.cacheTTL,
		}, metrics.EmbeddingCacheTotal, logger)
	}

	var budget embeddinguc.BudgetChecker
	if cfg.budget.daily > 0 || cfg.budget.monthly > 0 {
		action := embeddinguc.BudgetActionReject
		switch cfg.budget.action {
		case BudgetWarn:
			action = embeddinguc.BudgetActionWarn
		case BudgetReject, "":
		default:
			return embedders{}, fmt.Errorf("ragstore: unknown budget action %q", cfg.budget.action)
		}
		out.budget = embeddinguc.NewBudgetTracker(embeddinguc.BudgetConfig{
			Provider:     provider,
			DailyLimit:   cfg.budget.daily,
			MonthlyLimit: cfg.budget.monthly,
			Action:       action,
		}, logger).WithStore(context.Background(), budgetrepo.New(store, cfg.keyPrefix, provider))
		budget = out.budget
	}

	instrumented := embeddinguc.NewInstrumentedEmbedder(base, provider, model, budget, cfg.embedBatchSize, logger)

	out.document, out.query = instrumented, instrumented
	if cfg.documentInstruction != "" {
		out.document = domain.NewInstructionEmbedder(instrumented, cfg.documentInstruction)
	}
	if cfg.queryInstruction != "" {
		out.query = domain.NewInstructionEmbedder(instrumented, cfg.queryInstruction)
	}

	logger.Info("Embedders created",
		zap.String("provider", provider),
		zap.String("model", model),
		zap.Int("dimensions", cfg.vectorDimensions),
		zap.Bool("cache", cfg.cacheEnabled),
		zap.Bool("budget", out.budget != nil),
	)
	return out, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.chunks.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Health probes the index, the embedding provider and the token budget.
func (c *Client) Health(ctx context.Context) HealthReport {
	return c.health.Check(ctx)
}

// Tenant returns the operations scoped to one tenant.
func (c *Client) Tenant(name string) *TenantService {
	return &TenantService{tenant: name, chunks: c.chunks, ingest: c.ingest}
}

// Handler returns the HTTP API. An empty apiKeys disables bearer auth.
// Metrics are served at /metrics but only populated once registered.
func (c *Client) Handler(apiKeys []string) http.Handler {
	return chiTransport.NewServer(c.chunks, c.ingest, c.health, c.logger).Handler(apiKeys)
}
