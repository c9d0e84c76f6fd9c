package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/bambicim/copilot/internal/indexer"
)

var (
	indexDocIDs  []string
	indexLimit   int
	indexForce   bool
	indexWorkers int
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Split stored documents into paragraphs",
	Long: `Re-extracts paragraphs for stored documents and replaces each document's
paragraph set in one transaction. Documents whose paragraphs did not change
are skipped unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringSliceVar(&indexDocIDs, "doc", nil, "index only these document IDs (repeatable)")
	indexCmd.Flags().IntVar(&indexLimit, "limit", 0, "index at most this many documents (0 = all)")
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "rewrite paragraphs even when unchanged")
	indexCmd.Flags().IntVar(&indexWorkers, "workers", 0, "concurrent documents (0 = number of CPUs)")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	idx := a.indexer()
	stats, err := idx.IndexDocuments(ctx, &indexer.Config{
		Workers: indexWorkers,
		Limit:   indexLimit,
		DocIDs:  indexDocIDs,
		Force:   indexForce,
	})
	if err != nil {
		return err
	}

	cmd.Printf("Indexed %d documents (%d skipped, %d failed), %d paragraphs in %s\n",
		stats.DocumentsIndexed, stats.DocumentsSkipped, stats.DocumentsFailed,
		stats.ParagraphsCreated, stats.Duration.Round(time.Millisecond))
	for _, msg := range stats.ErrorMessages {
		cmd.Printf("  error: %s\n", msg)
	}
	return nil
}
