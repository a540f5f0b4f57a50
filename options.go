package ragstore

import (
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstore/internal/db"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

// BudgetAction decides what happens once an embedding budget is exhausted.
type BudgetAction string

// Budget actions.
const (
	BudgetWarn   BudgetAction = "warn"
	BudgetReject BudgetAction = "reject"
)

type openAIConfig struct {
	apiKey  string
	baseURL string
	model   string
	timeout time.Duration
}

type budgetConfig struct {
	daily   int64
	monthly int64
	action  BudgetAction
}

type clientConfig struct {
	addrs    []string
	username string
	password string
	db       int
	store    db.Store

	embedder Embedder
	openai   *openAIConfig
	provider string

	documentInstruction string
	queryInstruction    string
	cacheTTL            time.Duration
	cacheEnabled        bool
	budget              budgetConfig
	embedBatchSize      int

	keyPrefix          string
	vectorDimensions   int
	hnswM              int
	hnswEFConstruct    int
	chunkSize          int
	overlapSize        int
	minChunkSize       int
	maxConcurrentCalls int
	searchTopK         int
	acrossTopK         int
	contextMaxChunks   int
	statsLimit         int
	deletePageSize     int

	readinessTimeout time.Duration
	logger           *zap.Logger
}

// WithRedis connects the client to one or more Redis 8+ nodes.
func WithRedis(password string, addrs ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.addrs = addrs
		c.password = password
	})
}

// WithRedisAuth sets the ACL user and the logical database.
func WithRedisAuth(username string, dbIndex int) Option {
	return optionFunc(func(c *clientConfig) {
		c.username = username
		c.db = dbIndex
	})
}

// WithReadinessTimeout bounds how long New waits for the database.
// Defaults to 10s.
func WithReadinessTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.readinessTimeout = d
	})
}

// WithEmbedder sets a custom text embedding provider.
// If it also implements BatchEmbedder, ingestion embeds chunks in batches.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
		c.provider = "custom"
	})
}

// WithOpenAI uses an OpenAI-compatible embeddings API.
// baseURL may be empty for api.openai.com.
func WithOpenAI(apiKey, baseURL, model string) Option {
	return optionFunc(func(c *clientConfig) {
		if c.openai == nil {
			c.openai = &openAIConfig{}
		}
		c.openai.apiKey = apiKey
		c.openai.baseURL = baseURL
		c.openai.model = model
		c.provider = "openai"
	})
}

// WithEmbeddingTimeout bounds a single embeddings API call.
func WithEmbeddingTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		if c.openai == nil {
			c.openai = &openAIConfig{}
		}
		c.openai.timeout = d
	})
}

// WithProviderName labels metrics and budget keys. Defaults to "openai" or "custom".
func WithProviderName(name string) Option {
	return optionFunc(func(c *clientConfig) {
		c.provider = name
	})
}

// WithInstructions sets the prefixes asymmetric models expect on chunks and queries.
func WithInstructions(document, query string) Option {
	return optionFunc(func(c *clientConfig) {
		c.documentInstruction = document
		c.queryInstruction = query
	})
}

// WithEmbeddingCache caches vectors in Redis by content hash.
// A zero ttl keeps entries until the server evicts them.
func WithEmbeddingCache(ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheEnabled = true
		c.cacheTTL = ttl
	})
}

// WithEmbeddingBudget limits tokens per UTC day and month. A zero limit is unlimited.
func WithEmbeddingBudget(daily, monthly int64, action BudgetAction) Option {
	return optionFunc(func(c *clientConfig) {
		c.budget = budgetConfig{daily: daily, monthly: monthly, action: action}
	})
}

// WithEmbeddingBatchSize caps the texts sent in one provider call.
func WithEmbeddingBatchSize(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedBatchSize = n
	})
}

// WithKeyPrefix sets the prefix of every Redis key and index name.
// Defaults to "ragstore:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyPrefix = prefix
	})
}

// WithVectorDimensions sets the embedding dimension. Defaults to 1536.
func WithVectorDimensions(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.vectorDimensions = dim
	})
}

// WithHNSW configures HNSW index parameters (M and EF construction).
// Defaults: M=16, EFConstruct=200.
func WithHNSW(m, efConstruct int) Option {
	return optionFunc(func(c *clientConfig) {
		c.hnswM = m
		c.hnswEFConstruct = efConstruct
	})
}

// WithChunking sets segmenter sizes in characters.
// Defaults: 2048 / 256 / 128.
func WithChunking(chunkSize, overlapSize, minChunkSize int) Option {
	return optionFunc(func(c *clientConfig) {
		c.chunkSize = chunkSize
		c.overlapSize = overlapSize
		c.minChunkSize = minChunkSize
	})
}

// WithMaxConcurrentCalls bounds concurrent vector index calls. Defaults to 15.
func WithMaxConcurrentCalls(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxConcurrentCalls = n
	})
}

// WithSearchDefaults sets the result counts used when a call passes none.
// Defaults: 10 per file, 20 across documents and 50 context chunks.
func WithSearchDefaults(inFileTopK, acrossTopK, contextMaxChunks int) Option {
	return optionFunc(func(c *clientConfig) {
		c.searchTopK = inFileTopK
		c.acrossTopK = acrossTopK
		c.contextMaxChunks = contextMaxChunks
	})
}

// WithStatsLimit caps the chunks scanned by tenant stats.
func WithStatsLimit(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.statsLimit = n
	})
}

// WithDeletePageSize sets how many keys one delete round removes.
func WithDeletePageSize(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.deletePageSize = n
	})
}

// WithLogger sets the zap logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// withStore injects a ready store and skips the readiness wait.
func withStore(s db.Store) Option {
	return optionFunc(func(c *clientConfig) {
		c.store = s
	})
}
