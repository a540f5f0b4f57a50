package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragstore"
	"github.com/kailas-cloud/ragstore/internal/app"
	"github.com/kailas-cloud/ragstore/internal/config"
)

// tenantAPI is the slice of ragstore.TenantService the commands use.
type tenantAPI interface {
	Ingest(ctx context.Context, doc ragstore.Document) (ragstore.IngestResult, error)
	Reingest(ctx context.Context, doc ragstore.Document) (ragstore.IngestResult, error)
	Search(ctx context.Context, query string, opts *ragstore.SearchOptions) ([]ragstore.Hit, error)
	SearchInFile(ctx context.Context, filename, query string, topK int) ([]ragstore.Hit, error)
	FileContext(ctx context.Context, filename string, maxChunks int) ([]ragstore.Hit, error)
	DeleteFile(ctx context.Context, fileRef int64, filenameFallback string) (ragstore.DeleteResult, error)
	DeleteByFilename(ctx context.Context, filename string) (ragstore.Count, error)
	Purge(ctx context.Context) (ragstore.TenantDeleteResult, error)
	Stats(ctx context.Context) (ragstore.TenantStats, error)
	Summary(ctx context.Context, filename string) (ragstore.DocumentSummary, error)
}

type backend interface {
	Tenant(name string) tenantAPI
	Health(ctx context.Context) ragstore.HealthReport
	Close()
}

// connectFunc opens a backend for the resolved global flags.
type connectFunc func(ctx context.Context, g *globals) (backend, error)

type globals struct {
	env        string
	configPath string
	tenant     string
	json       bool
}

func newRootCmd(connect connectFunc) *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "ragctl",
		Short:         "Manage tenant document chunks in ragstore",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.env, "env", config.GetEnv(), "config environment (local, dev, prod)")
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "explicit config file path")
	root.PersistentFlags().StringVarP(&g.tenant, "tenant", "t", "", "tenant identifier")
	root.PersistentFlags().BoolVar(&g.json, "json", false, "print results as JSON")

	r := &runner{g: g, connect: connect}
	root.AddCommand(
		newIngestCmd(r),
		newSearchCmd(r),
		newContextCmd(r),
		newDeleteCmd(r),
		newPurgeCmd(r),
		newStatsCmd(r),
		newSummaryCmd(r),
		newHealthCmd(r),
		newVersionCmd(),
	)
	return root
}

// runner opens a backend per command and closes it afterwards.
type runner struct {
	g       *globals
	connect connectFunc
}

func (r *runner) withBackend(cmd *cobra.Command, fn func(ctx context.Context, b backend) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := r.connect(ctx, r.g)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer b.Close()
	return fn(ctx, b)
}

func (r *runner) withTenant(cmd *cobra.Command, fn func(ctx context.Context, t tenantAPI) error) error {
	if r.g.tenant == "" {
		return errors.New("--tenant is required")
	}
	return r.withBackend(cmd, func(ctx context.Context, b backend) error {
		return fn(ctx, b.Tenant(r.g.tenant))
	})
}

func (r *runner) printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

// clientBackend serves the commands from a real client.
type clientBackend struct {
	client *ragstore.Client
}

func (b clientBackend) Tenant(name string) tenantAPI { return b.client.Tenant(name) }

func (b clientBackend) Health(ctx context.Context) ragstore.HealthReport { return b.client.Health(ctx) }

func (b clientBackend) Close() { b.client.Close() }

// connectFromConfig loads the config file and builds a client. Logs go to stderr
// at warn level unless the config sets one.
func connectFromConfig(_ context.Context, g *globals) (backend, error) {
	var (
		cfg config.Config
		err error
	)
	if g.configPath != "" {
		cfg, err = config.LoadFile(g.configPath)
	} else {
		cfg, err = config.Load(g.env)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "warn"
	}

	logger, closer, err := app.NewLogger(g.env, cfg.Logging)
	if err != nil {
		return nil, err
	}

	client, err := ragstore.New(app.ClientOptions(cfg, logger)...)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	return closingBackend{clientBackend: clientBackend{client: client}, logger: logger, closer: closer}, nil
}

// closingBackend also flushes and releases the log file.
type closingBackend struct {
	clientBackend
	logger *zap.Logger
	closer io.Closer
}

func (b closingBackend) Close() {
	b.clientBackend.Close()
	_ = b.logger.Sync()
	_ = b.closer.Close()
}
