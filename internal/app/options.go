// Package app maps file configuration onto the public client and the logger.
package app

import (
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstore"
	"github.com/kailas-cloud/ragstore/internal/config"
	logpkg "github.com/kailas-cloud/ragstore/internal/logger"
)

// NewLogger builds the process logger with the optional rotating file.
func NewLogger(env string, cfg config.LoggingConfig) (*zap.Logger, io.Closer, error) {
	return logpkg.NewLoggerWithFile(env, cfg.Level, logpkg.FileConfig{
		Path:       cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
	})
}

// ClientOptions translates cfg into client options.
func ClientOptions(cfg config.Config, logger *zap.Logger) []ragstore.Option {
	emb := cfg.Embedding
	opts := []ragstore.Option{
		ragstore.WithLogger(logger),
		ragstore.WithRedis(cfg.Database.Password, cfg.Database.Addrs...),
		ragstore.WithRedisAuth(cfg.Database.Username, cfg.Database.DB),
		ragstore.WithReadinessTimeout(time.Duration(cfg.Database.ReadinessTimeout) * time.Second),
		ragstore.WithOpenAI(emb.APIKey, emb.BaseURL, emb.Model),
		ragstore.WithProviderName(emb.Provider),
		ragstore.WithEmbeddingTimeout(time.Duration(emb.TimeoutSec) * time.Second),
		ragstore.WithEmbeddingBatchSize(emb.BatchSize),
		ragstore.WithVectorDimensions(emb.Dimensions),
		ragstore.WithInstructions(emb.DocumentInstruction, emb.QueryInstruction),
		ragstore.WithKeyPrefix(cfg.Store.KeyPrefix),
		ragstore.WithMaxConcurrentCalls(cfg.Store.MaxConcurrentCalls),
		ragstore.WithSearchDefaults(cfg.Store.SearchTopK, cfg.Store.AcrossTopK, cfg.Store.ContextMaxChunks),
		ragstore.WithStatsLimit(cfg.Store.StatsLimit),
		ragstore.WithDeletePageSize(cfg.Index.DeletePageSize),
		ragstore.WithHNSW(cfg.Index.HNSWM, cfg.Index.HNSWEFConstruct),
		ragstore.WithChunking(cfg.Chunking.ChunkSize, cfg.Chunking.OverlapSize, cfg.Chunking.MinChunkSize),
	}
	if emb.CacheTTLHours > 0 {
		opts = append(opts, ragstore.WithEmbeddingCache(time.Duration(emb.CacheTTLHours)*time.Hour))
	}
	if emb.Budget.Enabled() {
		opts = append(opts, ragstore.WithEmbeddingBudget(
			emb.Budget.DailyTokenLimit, emb.Budget.MonthlyTokenLimit, ragstore.BudgetAction(emb.Budget.Action)))
	}
	return opts
}
