package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/ragserve/config"
	"github.com/mohammad-safakhou/ragserve/internal/store"
	"github.com/mohammad-safakhou/ragserve/provider"
)

const (
	maxChunkChars  = 1500
	embedBatchSize = 16
)

func ingestCMD() *cobra.Command {
	var cfgPath, dataDir string
	var cmd = &cobra.Command{
		Use:   "ingest",
		Short: "Embed documents into the vector store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			return runIngest(cfg, dataDir)
		},
	}
	cmd.Flags().StringVar(&dataDir, "data", "data", "directory of .txt/.md documents")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return cmd
}

func runIngest(cfg *config.Config, dataDir string) error {
	ctx := context.Background()

	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return err
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}
	llm, err := provider.NewProvider(cfg.LLM, cfg.Retrieval.EmbeddingModel)
	if err != nil {
		return err
	}

	logger := log.New(os.Stdout, "[INGEST] ", log.LstdFlags)

	var records []store.ChunkRecord
	err = filepath.WalkDir(dataDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".txt" && ext != ".md" {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		rel, err := filepath.Rel(dataDir, path)
		if err != nil {
			rel = path
		}
		for i, chunk := range splitChunks(string(raw)) {
			id := fmt.Sprintf("%s:%d", rel, i)
			records = append(records, store.ChunkRecord{
				ID:       id,
				SourceID: &id,
				Content:  chunk,
			})
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		logger.Printf("no documents found under %s", dataDir)
		return nil
	}
	logger.Printf("embedding %d chunks from %s", len(records), dataDir)

	for start := 0; start < len(records); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]
		texts := make([]string, len(batch))
		for i, rec := range batch {
			texts[i] = rec.Content
		}
		vecs, err := llm.CreateEmbedding(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch at %d: %w", start, err)
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("embed batch at %d: got %d vectors for %d texts", start, len(vecs), len(batch))
		}
		for i := range batch {
			batch[i].Vector = vecs[i]
			if err := st.UpsertChunk(ctx, batch[i]); err != nil {
				return err
			}
		}
		logger.Printf("ingested %d/%d chunks", end, len(records))
	}
	return nil
}

// splitChunks breaks a document on blank lines, packing paragraphs into
// chunks of at most maxChunkChars.
func splitChunks(text string) []string {
	paragraphs := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	var chunks []string
	var current strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(p)+2 > maxChunkChars {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
