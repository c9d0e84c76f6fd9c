package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bambicim/copilot/internal/indexer"
)

var (
	denseOut   string
	denseLimit int
)

var exportDenseCmd = &cobra.Command{
	Use:   "export-dense",
	Short: "Write paragraph embeddings to a directory",
	Long: `Embeds every paragraph between 50 and 900 characters and writes
corpus.jsonl (pid, doc_id, url, title, text) and vectors.bin to the output
directory. Requires a working embedding provider.`,
	Args: cobra.NoArgs,
	RunE: runExportDense,
}

var (
	pairsOut       string
	pairsNegPerPos int
	pairsMinLen    int
	pairsMaxPairs  int
	pairsHints     []string
)

var exportPairsCmd = &cobra.Command{
	Use:   "export-pairs",
	Short: "Write (query, positive, negatives) training pairs as JSONL",
	Long: `Derives candidate queries from each document's title, leading paragraphs
and the site hints, pairs them with the document's longest clean paragraph
and draws negatives from other documents.`,
	Args: cobra.NoArgs,
	RunE: runExportPairs,
}

func init() {
	exportDenseCmd.Flags().StringVarP(&denseOut, "out", "o", "dense_index", "output directory")
	exportDenseCmd.Flags().IntVar(&denseLimit, "limit", 0, "export at most this many documents (0 = all)")
	rootCmd.AddCommand(exportDenseCmd)

	defaults := indexer.DefaultPairOptions()
	exportPairsCmd.Flags().StringVarP(&pairsOut, "out", "o", "-", "output file (- = stdout)")
	exportPairsCmd.Flags().IntVar(&pairsNegPerPos, "neg-per-pos", defaults.NegPerPos, "negatives per pair")
	exportPairsCmd.Flags().IntVar(&pairsMinLen, "min-len", defaults.MinLen, "minimum paragraph length")
	exportPairsCmd.Flags().IntVar(&pairsMaxPairs, "max-pairs", defaults.MaxPairs, "maximum number of pairs")
	exportPairsCmd.Flags().StringSliceVar(&pairsHints, "hint", defaults.Hints, "extra candidate queries (repeatable)")
	rootCmd.AddCommand(exportPairsCmd)
}

func runExportDense(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	idx := a.indexer()
	stats, err := idx.ExportDense(ctx, a.backend, denseOut, denseLimit)
	if err != nil {
		return fmt.Errorf("export dense index: %w", err)
	}
	cmd.Printf("Wrote %d paragraphs from %d documents (dim %d) to %s\n",
		stats.Paragraphs, stats.Documents, stats.Dimension, denseOut)
	return nil
}

func runExportPairs(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	a, err := openApp(ctx, false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	var w io.Writer = cmd.OutOrStdout()
	if pairsOut != "-" {
		f, err := os.Create(pairsOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", pairsOut, err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	buf := bufio.NewWriter(w)

	opts := indexer.DefaultPairOptions()
	opts.NegPerPos = pairsNegPerPos
	opts.MinLen = pairsMinLen
	opts.MaxPairs = pairsMaxPairs
	opts.Hints = pairsHints

	n, err := a.indexer().ExportPairs(ctx, buf, opts)
	if err != nil {
		return fmt.Errorf("export pairs: %w", err)
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if pairsOut != "-" {
		cmd.Printf("Wrote %d pairs to %s\n", n, pairsOut)
	} else {
		a.logger.Info("pairs exported", "count", n)
	}
	return nil
}
