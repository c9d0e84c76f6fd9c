package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bambicim/copilot/internal/chunker"
	"github.com/bambicim/copilot/internal/config"
	"github.com/bambicim/copilot/internal/dense"
	"github.com/bambicim/copilot/internal/embedder"
	"github.com/bambicim/copilot/internal/indexer"
	"github.com/bambicim/copilot/internal/logging"
	"github.com/bambicim/copilot/internal/metrics"
	"github.com/bambicim/copilot/internal/resilience"
	"github.com/bambicim/copilot/internal/searcher"
	"github.com/bambicim/copilot/internal/storage"
	"github.com/bambicim/copilot/internal/storage/postgres"
	"github.com/bambicim/copilot/internal/vectorcache"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "copilot",
	Short: "Site search copilot",
	Long: `copilot answers questions about a site by hybrid search over its pages.

Pages are crawled into a document store, split into paragraphs and ranked
with BM25 combined with dense embeddings. The same index is exposed to
assistants as an MCP server over stdio.

Settings come from defaults, an optional TOML file (--config) and
environment variables, with the environment taking precedence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
}

// app holds the components shared by the subcommands.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	store   storage.DocumentStore
	metrics *metrics.Metrics
	cache   *vectorcache.Store
	backend dense.Backend
}

// openApp loads configuration and opens the store. The dense backend is only
// opened when withDense is set, so commands that never embed skip the
// provider checks.
func openApp(ctx context.Context, withDense bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Observability.LogLevel = logLevel
	}

	a := &app{
		cfg:     cfg,
		logger:  logging.New("copilot", cfg.Observability.LogFormat, cfg.Observability.LogLevel),
		metrics: metrics.New(),
	}
	slog.SetDefault(a.logger)

	a.store, err = openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	if !withDense {
		a.backend = dense.Unavailable("not requested")
		return a, nil
	}
	if err := a.openDense(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func openStore(ctx context.Context, cfg config.Storage) (storage.DocumentStore, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	case config.DriverSQLite, "":
		store, err := storage.NewSQLiteStorage(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store %s: %w", cfg.Path, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func (a *app) openDense() error {
	emb := a.cfg.Embedding

	var persistent embedder.PersistentCache
	if emb.CacheDir != "" {
		cache, err := vectorcache.Open(emb.CacheDir, a.logger)
		if err != nil {
			return fmt.Errorf("open vector cache: %w", err)
		}
		a.cache = cache
		persistent = cache
	}

	exec := resilience.NewExecutor(resilience.DefaultConfig(), resilience.WithLogger(a.logger))
	a.backend = dense.Open(embedder.Config{
		Provider:  emb.Provider,
		Model:     emb.Model,
		BaseURL:   emb.Host,
		Dimension: emb.Dimension,
		CacheSize: emb.CacheSize,
		Executor:  exec,
		Store:     persistent,
	}, emb.Workers,
		dense.WithExecutor(exec),
		dense.WithBatchSize(emb.BatchSize),
		dense.WithLogger(a.logger),
	)
	return nil
}

func (a *app) index() *searcher.Index {
	return searcher.New(a.store, a.backend, searcher.ConfigFrom(a.cfg.Retrieval),
		searcher.WithLogger(a.logger),
		searcher.WithMetrics(a.metrics),
	)
}

func (a *app) indexer() *indexer.Indexer {
	return indexer.New(a.store,
		indexer.WithChunker(chunker.New(chunker.WithMaxLen(a.cfg.Retrieval.ParagraphMaxLen))),
		indexer.WithLogger(a.logger),
	)
}

// Close releases the backend, cache and store in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	if a.backend != nil {
		errs = append(errs, a.backend.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
