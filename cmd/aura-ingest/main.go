// Command aura-ingest loads lesson/style-guide documents from disk into
// the Knowledge Index, embedding each section through the same model
// provider aura-core queries at retrieval time.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ofircohen205/aura-sub001/config"
	"github.com/ofircohen205/aura-sub001/knowledge"
	"github.com/ofircohen205/aura-sub001/llm"
)

var (
	cfgPrefix string
	tenantID  string
	sourceDir string
	tags      []string
)

var rootCmd = &cobra.Command{
	Use:   "aura-ingest",
	Short: "ingests lesson documents into the Knowledge Index",
	RunE:  runIngest,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPrefix, "env-prefix", "AURA", "environment variable prefix for configuration")
	rootCmd.Flags().StringVar(&tenantID, "tenant", "", "tenant ID to ingest documents under (empty for a global shard)")
	rootCmd.Flags().StringVar(&sourceDir, "source", "", "directory of .md documents to ingest")
	rootCmd.Flags().StringSliceVar(&tags, "tags", nil, "tags to attach to every ingested chunk")
	rootCmd.MarkFlagRequired("source")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPrefix)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	index, err := knowledge.Open(cfg.Store.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open knowledge index: %w", err)
	}

	embedder := llm.New(llm.Config{
		BaseURL:            os.Getenv(cfgPrefix + "_LLM_BASE_URL"),
		APIKey:             os.Getenv(cfgPrefix + "_LLM_API_KEY"),
		EmbeddingModel:     os.Getenv(cfgPrefix + "_LLM_EMBEDDING_MODEL"),
		EmbeddingDimension: cfg.Tunables.EmbeddingDimension,
	})

	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return fmt.Errorf("read source directory: %w", err)
	}

	ctx := context.Background()
	total := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}

		path := filepath.Join(sourceDir, entry.Name())
		body, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		doc := knowledge.Document{
			TenantID: tenantID,
			Title:    strings.TrimSuffix(entry.Name(), ".md"),
			Body:     string(body),
			Tags:     tags,
		}

		written, err := index.Ingest(ctx, doc, embedder)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		fmt.Printf("%s: %d chunks\n", doc.Title, written)
		total += written
	}

	fmt.Printf("ingested %d chunks total\n", total)
	return nil
}
