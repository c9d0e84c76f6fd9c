package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bambicim/copilot/internal/snippet"
	"github.com/bambicim/copilot/internal/tokenizer"
	"github.com/bambicim/copilot/pkg/types"
)

var (
	searchLimit int
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search stored pages",
	Long: `Builds the retrieval index and runs one query against it.
Keyword (BM25) and semantic (dense) scores are fused per document; when the
embedding backend is unavailable results are ranked lexically.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum number of results (0 = configured top_k)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]
	if strings.TrimSpace(query) == "" {
		return types.ErrEmptyQuery
	}

	ctx := context.Background()
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	index := a.index()
	if err := index.Build(ctx, false); err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	k := searchLimit
	if k <= 0 {
		k = index.Config().TopK
	}
	answer := index.Query(ctx, query, k)
	results := answer.Results
	a.logger.Debug("search ranked", "mode", answer.Mode, "count", len(results))

	if searchJSON {
		return outputSearchJSON(cmd, results)
	}
	cfg := index.Config()
	return outputSearchTable(cmd, results, tokenizer.New(cfg.Language, tokenizer.WithStopwords(cfg.Stopwords)).Tokenize(query))
}

func outputSearchJSON(cmd *cobra.Command, results []types.SearchResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []types.SearchResult, tokens []string) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	for _, r := range results {
		title := r.Title
		if title == "" {
			title = r.ID
		}
		cmd.Printf("[%d] %s (%.3f)\n", r.Rank, title, r.Score)
		if r.URL != "" {
			cmd.Printf("    %s\n", r.URL)
		}
		cmd.Printf("    %s\n\n", snippet.Mark(r.Snippet, tokens, "**", "**"))
	}
	return nil
}
