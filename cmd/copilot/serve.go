package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bambicim/copilot/internal/mcp"
	"github.com/bambicim/copilot/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	Long: `Start the Model Context Protocol server for assistant integration.

The server speaks JSON-RPC on stdin/stdout; logs go to stderr. When
METRICS_ADDR (or observability.metrics_addr) is set, Prometheus metrics are
served on that address under /metrics.

Assistant configuration:
  {
    "mcpServers": {
      "copilot": {
        "command": "/path/to/copilot",
        "args": ["serve"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	a.logger.Info("copilot MCP server starting",
		"version", version,
		"build_mode", storage.BuildMode,
		"driver", storage.DriverName,
		"storage", a.cfg.Storage.Driver,
		"dense", a.backend.Name(),
	)

	if addr := a.cfg.Observability.MetricsAddr; addr != "" {
		go func() {
			a.logger.Info("metrics listening", "addr", addr)
			if err := a.metrics.Serve(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	mcp.ServerVersion = version
	index := a.index()
	idx := a.indexer()
	server := mcp.NewServer(a.store, index, idx, mcp.WithLogger(a.logger))

	// Warm the index before accepting requests.
	if err := index.Build(ctx, false); err != nil {
		a.logger.Warn("initial index build failed", "error", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		a.logger.Info("MCP server ready, listening on stdio")
		errChan <- server.Serve(ctx)
	}()

	select {
	case sig := <-sigChan:
		a.logger.Info("shutting down", "signal", sig.String())
		cancel()
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	a.logger.Info("server stopped")
	return nil
}
