package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"docindex/internal/engine"
)

var (
	indexDescription string
	indexJSON        bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage indexes",
	Long: `Create, delete and inspect named indexes. Indexes are stored in
.docindex/ within the root directory.

Examples:
  docindex index create notes --description "meeting notes"
  docindex index list
  docindex index info notes
  docindex index delete notes`,
}

var indexCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an empty index",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexCreate,
}

var indexDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete an index with all its documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexDelete,
}

var indexListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexes",
	Args:  cobra.NoArgs,
	RunE:  runIndexList,
}

var indexInfoCmd = &cobra.Command{
	Use:   "info <name>",
	Short: "Show an index and its documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndexInfo,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexCreateCmd, indexDeleteCmd, indexListCmd, indexInfoCmd)

	indexCreateCmd.Flags().StringVar(&indexDescription, "description", "", "index description")
	indexListCmd.Flags().BoolVar(&indexJSON, "json", false, "output as JSON")
	indexInfoCmd.Flags().BoolVar(&indexJSON, "json", false, "output as JSON")
}

func runIndexCreate(cmd *cobra.Command, args []string) error {
	eng, err := engine.Open(cmd.Context(), GetConfig(), GetRootDir())
	if err != nil {
		return err
	}
	defer eng.Close()

	summary, err := eng.Manager.CreateIndex(cmd.Context(), args[0], indexDescription)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	fmt.Printf("Created index %s\n", summary.Name)
	return nil
}

func runIndexDelete(cmd *cobra.Command, args []string) error {
	eng, err := engine.Open(cmd.Context(), GetConfig(), GetRootDir())
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.Manager.DeleteIndex(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete index: %w", err)
	}

	fmt.Printf("Deleted index %s\n", args[0])
	return nil
}

func runIndexList(cmd *cobra.Command, args []string) error {
	eng, err := engine.Open(cmd.Context(), GetConfig(), GetRootDir())
	if err != nil {
		return err
	}
	defer eng.Close()

	indexes := eng.Manager.ListIndexes()

	if indexJSON {
		return printJSON(indexes)
	}
	if len(indexes) == 0 {
		fmt.Println("No indexes. Run 'docindex index create <name>' first.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDOCUMENTS\tCHUNKS\tSIZE\tCREATED")
	for _, idx := range indexes {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n",
			idx.Name,
			idx.Stats.TotalDocuments,
			idx.Stats.TotalChunks,
			formatBytes(idx.Stats.TotalSizeBytes),
			idx.CreatedAt.Local().Format(time.DateTime),
		)
	}
	return w.Flush()
}

func runIndexInfo(cmd *cobra.Command, args []string) error {
	eng, err := engine.Open(cmd.Context(), GetConfig(), GetRootDir())
	if err != nil {
		return err
	}
	defer eng.Close()

	info, err := eng.Manager.GetIndexInfo(args[0])
	if err != nil {
		return fmt.Errorf("failed to get index: %w", err)
	}

	if indexJSON {
		return printJSON(info)
	}

	fmt.Printf("Index:       %s\n", info.Name)
	if info.Description != "" {
		fmt.Printf("Description: %s\n", info.Description)
	}
	fmt.Printf("Created:     %s\n", info.CreatedAt.Local().Format(time.DateTime))
	fmt.Printf("Documents:   %d\n", info.Stats.TotalDocuments)
	fmt.Printf("Chunks:      %d\n", info.Stats.TotalChunks)
	fmt.Printf("Size:        %s\n", formatBytes(info.Stats.TotalSizeBytes))

	if len(info.Documents) > 0 {
		fmt.Println()
		printDocuments(info.Documents)
	}
	return nil
}

func printJSON(v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
