package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"docindex/internal/adapter/fs"
	"docindex/internal/domain"
	"docindex/internal/engine"
)

var (
	docMeta []string
	docJSON bool
)

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Manage the documents of an index",
	Long: `Add, delete and list documents. Directories are walked using the
ingest include/exclude globs and the allowed extension list.

Examples:
  docindex doc add notes ./meeting.md ./docs
  docindex doc add notes report.docx --meta team=infra
  docindex doc list notes
  docindex doc delete notes 3f1c...`,
}

var docAddCmd = &cobra.Command{
	Use:   "add <index> <path>...",
	Short: "Add files or directories to an index",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runDocAdd,
}

var docDeleteCmd = &cobra.Command{
	Use:   "delete <index> <document-id>",
	Short: "Delete a document from an index",
	Args:  cobra.ExactArgs(2),
	RunE:  runDocDelete,
}

var docListCmd = &cobra.Command{
	Use:   "list <index>",
	Short: "List the documents of an index",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocList,
}

func init() {
	rootCmd.AddCommand(docCmd)
	docCmd.AddCommand(docAddCmd, docDeleteCmd, docListCmd)

	docAddCmd.Flags().StringArrayVar(&docMeta, "meta", nil, "metadata key=value attached to every added document")
	docListCmd.Flags().BoolVar(&docJSON, "json", false, "output as JSON")
}

func runDocAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	name := args[0]

	metadata, err := parseMeta(docMeta)
	if err != nil {
		return err
	}

	eng, err := engine.Open(ctx, cfg, GetRootDir())
	if err != nil {
		return err
	}
	defer eng.Close()

	if _, err := eng.Manager.GetIndexInfo(name); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}

	walker := fs.NewWalker(cfg.Ingest.Includes, cfg.Ingest.Excludes).WithFilter(cfg.ExtensionAllowed)
	files, err := walker.Collect(args[1:])
	if err != nil {
		return fmt.Errorf("failed to collect files: %w", err)
	}
	if len(files) == 0 {
		fmt.Println("No matching files.")
		return nil
	}

	fmt.Printf("Adding %d files to %s...\n", len(files), name)

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Adding[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
		// Redirected output gets the summary only.
		progressbar.OptionSetVisibility(isatty.IsTerminal(os.Stdout.Fd())),
	)

	var (
		added    int
		chunks   int
		embedded int
		warnings []string
	)
	start := time.Now()

	for i, f := range files {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", f.Path, err))
			bar.Set(i + 1)
			continue
		}

		meta := make(map[string]string, len(metadata)+1)
		for k, v := range metadata {
			meta[k] = v
		}
		meta["source_path"] = f.Path

		res, err := eng.Manager.AddDocument(ctx, name, data, filepath.Base(f.Path), meta)
		var perr *domain.PersistenceError
		switch {
		case errors.As(err, &perr):
			// Committed in memory; Close retries the write.
			warnings = append(warnings, fmt.Sprintf("%s: %v", f.Path, err))
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			warnings = append(warnings, fmt.Sprintf("%s: %v", f.Path, err))
			bar.Set(i + 1)
			continue
		}

		added++
		chunks += res.ChunkCount
		embedded += res.Embedded

		bar.Set(i + 1)
		if elapsed := time.Since(start); elapsed > 0 {
			rate := float64(i+1) / elapsed.Seconds()
			if rate > 0 {
				eta := time.Duration(float64(len(files)-i-1)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Adding[reset] ETA: %s", formatDuration(eta)))
			}
		}
	}

	fmt.Printf("\nIngestion complete:\n")
	fmt.Printf("  Documents added: %d\n", added)
	fmt.Printf("  Chunks created:  %d\n", chunks)
	fmt.Printf("  Embedded chunks: %d\n", embedded)
	fmt.Printf("  Elapsed:         %s\n", formatDuration(time.Since(start)))

	if len(warnings) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}
	return nil
}

func runDocDelete(cmd *cobra.Command, args []string) error {
	eng, err := engine.Open(cmd.Context(), GetConfig(), GetRootDir())
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.Manager.DeleteDocument(cmd.Context(), args[0], args[1]); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	fmt.Printf("Deleted document %s from %s\n", args[1], args[0])
	return nil
}

func runDocList(cmd *cobra.Command, args []string) error {
	eng, err := engine.Open(cmd.Context(), GetConfig(), GetRootDir())
	if err != nil {
		return err
	}
	defer eng.Close()

	docs, err := eng.Manager.GetDocuments(args[0])
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if docJSON {
		return printJSON(docs)
	}
	if len(docs) == 0 {
		fmt.Println("No documents.")
		return nil
	}
	printDocuments(docs)
	return nil
}

func printDocuments(docs []domain.DocumentSummary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFILENAME\tCHUNKS\tSIZE\tUPLOADED")
	for _, d := range docs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			d.ID,
			d.Filename,
			d.ChunkCount,
			formatBytes(d.Size),
			d.UploadedAt.Local().Format(time.DateTime),
		)
	}
	w.Flush()
}

func parseMeta(pairs []string) (map[string]string, error) {
	meta := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid metadata %q, expected key=value", p)
		}
		meta[k] = v
	}
	return meta, nil
}
