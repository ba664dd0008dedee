package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"docindex/config"
	"docindex/internal/domain"
	"docindex/internal/engine"
	"docindex/internal/usecase"
)

func main() {
	root := flag.String("dir", ".", "Root directory holding .docindex")
	index := flag.String("index", "", "Index to query")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 10, "Number of results")
	runs := flag.Int("runs", 20, "Timed runs per mode")
	flag.Parse()

	if *runs < 1 {
		*runs = 1
	}

	if *query == "" || *index == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -dir . -index notes -q \"query\"")
		fmt.Println("\nReports per mode:")
		fmt.Println("  1. Latency over repeated runs")
		fmt.Println("  2. Score quality of the top results")
		fmt.Println("  3. Overlap between lexical, vector and hybrid results")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	// Cached answers would hide the real cost of a query.
	cfg.Query.CacheSize = 0
	cfg.Logging.Level = "warn"

	ctx := context.Background()
	eng, err := engine.Open(ctx, cfg, *root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening index: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	info, err := eng.Manager.GetIndexInfo(*index)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("RETRIEVAL BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Index: %s (%d documents, %d chunks)\n", info.Name, info.Stats.TotalDocuments, info.Stats.TotalChunks)
	fmt.Printf("Embedding: %s (%s), vector backend: %s\n", cfg.Embedding.Model, cfg.Embedding.Provider, cfg.Vector.Backend)
	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Println()

	modes := []domain.QueryMode{domain.ModeLexical, domain.ModeVector, domain.ModeHybrid}
	results := make(map[domain.QueryMode][]domain.QueryResult, len(modes))

	for _, mode := range modes {
		req := usecase.QueryRequest{Index: *index, Text: *query, K: *topK, Mode: mode}

		var resp *domain.QueryResponse
		start := time.Now()
		for i := 0; i < *runs; i++ {
			resp, err = eng.Coordinator.Query(ctx, req)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s query error: %v\n", mode, err)
				os.Exit(1)
			}
		}
		avg := time.Since(start) / time.Duration(*runs)
		results[mode] = resp.Results

		fmt.Printf("%s\n", strings.ToUpper(string(mode)))
		fmt.Println(strings.Repeat("-", 70))
		fmt.Printf("Average latency: %s over %d runs\n", avg, *runs)
		if len(resp.Results) == 0 {
			fmt.Println("No results.")
			fmt.Println()
			continue
		}

		total := 0.0
		for i, r := range resp.Results {
			total += r.Score
			if i < 3 {
				preview := []rune(strings.ReplaceAll(r.Text, "\n", " "))
				if len(preview) > 100 {
					preview = append(preview[:100], []rune("...")...)
				}
				fmt.Printf("%d. [%.3f] %s #%d\n   %s\n", i+1, r.Score, r.DocumentName, r.ChunkIndex, string(preview))
			}
		}
		fmt.Printf("Average score: %.3f, top-1: %.3f\n\n", total/float64(len(resp.Results)), resp.Results[0].Score)
	}

	fmt.Println(strings.Repeat("=", 70))
	fmt.Println("OVERLAP (Jaccard of chunk ids):")
	fmt.Printf("  lexical / vector: %.2f\n", overlap(results[domain.ModeLexical], results[domain.ModeVector]))
	fmt.Printf("  lexical / hybrid: %.2f\n", overlap(results[domain.ModeLexical], results[domain.ModeHybrid]))
	fmt.Printf("  vector / hybrid:  %.2f\n", overlap(results[domain.ModeVector], results[domain.ModeHybrid]))
}

func overlap(a, b []domain.QueryResult) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, r := range a {
		set[r.ChunkID] = true
	}
	inter := 0
	union := len(set)
	for _, r := range b {
		if set[r.ChunkID] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}
