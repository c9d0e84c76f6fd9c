package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bambicim/copilot/internal/crawler"
	"github.com/bambicim/copilot/internal/indexer"
)

var (
	crawlBase         string
	crawlFallback     string
	crawlPaths        []string
	crawlIgnoreErrors bool
	crawlIndex        bool
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Fetch site pages into the document store",
	Long: `Fetches each configured path from the base URL, strips navigation and
boilerplate and stores the main text as a page document. A path with a
fragment ("/#contact") stores only the section around that element.

Flags override the [crawler] section of the configuration.`,
	Args: cobra.NoArgs,
	RunE: runCrawl,
}

func init() {
	crawlCmd.Flags().StringVar(&crawlBase, "base", "", "base URL of the site")
	crawlCmd.Flags().StringVar(&crawlFallback, "fallback-base", "", "base URL tried when the primary fails")
	crawlCmd.Flags().StringSliceVar(&crawlPaths, "path", nil, "paths to fetch (repeatable)")
	crawlCmd.Flags().BoolVar(&crawlIgnoreErrors, "ignore-errors", false, "skip failing pages instead of aborting")
	crawlCmd.Flags().BoolVar(&crawlIndex, "index", true, "split the stored pages into paragraphs afterwards")
	rootCmd.AddCommand(crawlCmd)
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	cfg := crawler.ConfigFrom(a.cfg.Crawler)
	if crawlBase != "" {
		cfg.BaseURL = crawlBase
	}
	if crawlFallback != "" {
		cfg.FallbackBaseURL = crawlFallback
	}
	if len(crawlPaths) > 0 {
		cfg.Paths = crawlPaths
	}
	cfg.IgnoreErrors = crawlIgnoreErrors

	c, err := crawler.New(a.store, cfg, crawler.WithLogger(a.logger), crawler.WithMetrics(a.metrics))
	if err != nil {
		return err
	}
	res, err := c.Run(ctx)
	if res != nil {
		cmd.Printf("Stored %d pages, %d failed\n", res.Stored, res.Failed)
	}
	if err != nil {
		return err
	}
	if !crawlIndex || res.Stored == 0 {
		return nil
	}

	stats, err := a.indexer().IndexDocuments(ctx, &indexer.Config{})
	if err != nil {
		return fmt.Errorf("index crawled pages: %w", err)
	}
	cmd.Printf("Indexed %d documents, %d paragraphs\n", stats.DocumentsIndexed, stats.ParagraphsCreated)
	return nil
}
