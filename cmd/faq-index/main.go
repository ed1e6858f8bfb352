// Command faq-index chunks study FAQ documents and loads them into the
// vector store used for participant question answering.
//
// Usage:
//
//	faq-index -study zyn docs/zyn-faq.md [more files...]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"intake_backend/internal/faq"
	"intake_backend/platform/config"
	"intake_backend/platform/logger"
	"intake_backend/platform/qdrant"
)

const geminiEmbeddingSize = 768

func main() {
	studyID := flag.String("study", "", "study the documents belong to (required)")
	flag.Parse()

	if *studyID == "" || flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: faq-index -study <id> <file.md> [file...]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	if !cfg.IsFAQEnabled() {
		fmt.Fprintln(os.Stderr, "GEMINI_API_KEY and QDRANT_URL must be configured")
		os.Exit(1)
	}

	log := logger.New(cfg.Env)
	ctx := context.Background()

	gemini, err := faq.NewGemini(ctx, cfg.GetGeminiAPIKey(), cfg.GetGeminiModel(), cfg.GetGeminiEmbedModel())
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize gemini client:", err)
		os.Exit(1)
	}

	vectors := qdrant.NewClient(qdrant.Config{
		BaseURL:    cfg.GetQdrantURL(),
		APIKey:     cfg.GetQdrantAPIKey(),
		Collection: cfg.GetQdrantCollection(),
	})
	if err := vectors.EnsureCollection(ctx, geminiEmbeddingSize); err != nil {
		fmt.Fprintln(os.Stderr, "failed to ensure collection:", err)
		os.Exit(1)
	}

	svc := faq.NewService(gemini, vectors, gemini, cfg.GetFAQTopK(), log)

	total := 0
	for _, path := range flag.Args() {
		count, err := svc.IndexDocument(ctx, *studyID, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to index %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("indexed %s: %d chunks\n", path, count)
		total += count
	}
	fmt.Printf("done: %d chunks for study %s\n", total, *studyID)
}
