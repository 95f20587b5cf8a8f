package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"memkernel/internal/memory"
)

var (
	searchLimit     int
	searchProject   string
	searchType      string
	searchNoCache   bool
	searchNoRerank  bool
	searchForceMode string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Run the read path against stored memories",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "Maximum results")
	searchCmd.Flags().StringVar(&searchProject, "project", "", "Filter by project")
	searchCmd.Flags().StringVar(&searchType, "type", "", "Filter by type")
	searchCmd.Flags().BoolVar(&searchNoCache, "no-cache", false, "Bypass the query cache")
	searchCmd.Flags().BoolVar(&searchNoRerank, "no-rerank", false, "Skip reranking")
	searchCmd.Flags().StringVar(&searchForceMode, "mode", "", "Force dense|sparse|hybrid instead of auto-selecting")
}

func runSearch(cmd *cobra.Command, args []string) error {
	k, err := buildKernel()
	if err != nil {
		return err
	}
	defer k.close()

	var filter memory.Filter
	if searchProject != "" {
		filter.Project = searchProject
	}
	if searchType != "" {
		t := memory.Type(searchType)
		filter.Type = &t
	}

	opts := memory.SearchOptions{
		Filter:       filter,
		Limit:        searchLimit,
		UseCache:     !searchNoCache,
		UseReranking: !searchNoRerank,
		ForceMode:    memory.QueryMode(searchForceMode),
	}

	results, meta, err := k.collection.Search(cmd.Context(), args[0], opts)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if jsonOutput {
		printResult(map[string]any{"results": results, "metadata": meta})
		return nil
	}

	fmt.Printf("mode=%s cache_hit=%v reranked=%v graph_available=%v\n", meta.Mode, meta.CacheHit, meta.Reranked, meta.GraphAvailable)
	for _, r := range results {
		fmt.Printf("%.4f  %-8s  %-36s  %s\n", r.Score, r.Memory.Type, r.Memory.ID, truncate(r.Memory.Content, 80))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
