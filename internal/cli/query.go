package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"docindex/internal/domain"
	"docindex/internal/engine"
	"docindex/internal/usecase"
)

var (
	queryIndexes []string
	queryText    string
	queryTopK    int
	queryMode    string
	queryJSON    bool
)

var queryCmd = &cobra.Command{
	Use:   "query [index]",
	Short: "Search one or more indexes",
	Long: `Search indexes for the chunks most relevant to a query.

Name one index as the argument, or several with repeated --index flags.
Results from several indexes are merged by score; unknown names are
reported and skipped.

Modes:
  lexical  TF-IDF term scoring
  vector   cosine similarity of embeddings
  hybrid   both, merged by text prefix (default)

Examples:
  docindex query notes -q "release schedule"
  docindex query notes -q "release schedule" -k 10 --mode lexical --json
  docindex query --index notes --index wiki -q "release schedule"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringArrayVarP(&queryIndexes, "index", "i", nil, "index to search (repeatable)")
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().StringVarP(&queryMode, "mode", "m", string(domain.ModeHybrid), "lexical, vector or hybrid")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	indexes := append(append([]string{}, args...), queryIndexes...)
	if len(indexes) == 0 {
		return fmt.Errorf("no index given: pass <index> or --index")
	}

	eng, err := engine.Open(cmd.Context(), GetConfig(), GetRootDir())
	if err != nil {
		return err
	}
	defer eng.Close()

	if len(indexes) > 1 {
		return runMultiQuery(cmd, eng, indexes)
	}

	resp, err := eng.Coordinator.Query(cmd.Context(), usecase.QueryRequest{
		Index: indexes[0],
		Text:  queryText,
		K:     queryTopK,
		Mode:  domain.QueryMode(queryMode),
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if queryJSON {
		return printJSON(resp)
	}

	if resp.TotalResults == 0 {
		fmt.Println("No results found.")
		return nil
	}
	fmt.Printf("Found %d results for: %s (%s)\n\n", resp.TotalResults, resp.Query, resp.Mode)
	printResults(resp.Results, false)
	return nil
}

func runMultiQuery(cmd *cobra.Command, eng *engine.Engine, indexes []string) error {
	resp, err := eng.Coordinator.QueryMany(cmd.Context(), usecase.MultiQueryRequest{
		Indexes: indexes,
		Text:    queryText,
		K:       queryTopK,
		Mode:    domain.QueryMode(queryMode),
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if queryJSON {
		return printJSON(resp)
	}

	if len(resp.MissingIndexes) > 0 {
		fmt.Fprintf(os.Stderr, "Skipped missing indexes: %s\n", strings.Join(resp.MissingIndexes, ", "))
	}
	if resp.TotalResults == 0 {
		fmt.Println("No results found.")
		return nil
	}
	fmt.Printf("Found %d results across %s for: %s (%s)\n\n",
		resp.TotalResults, strings.Join(resp.Indexes, ", "), resp.Query, resp.Mode)
	printResults(resp.Results, true)
	return nil
}

func printResults(results []domain.QueryResult, withIndex bool) {
	for i, r := range results {
		source := r.DocumentName
		if withIndex {
			source = r.IndexName + "/" + source
		}
		fmt.Printf("--- [%d] %s #%d (score: %.3f) ---\n", i+1, source, r.ChunkIndex, r.Score)
		// Truncate long text for display
		text := []rune(r.Text)
		if len(text) > 500 {
			text = append(text[:500], []rune("...")...)
		}
		fmt.Println(string(text))
		fmt.Println()
	}
}
