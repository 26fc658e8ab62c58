package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	config "crmpilot/app/configs"
	"crmpilot/app/core/kb"
	"crmpilot/app/core/llm"
	"crmpilot/app/core/store"
	"crmpilot/app/pkg/logger"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to config file")
	dataDir := flag.String("data-dir", "output/db", "path to the sqlite data directory")
	kbDir := flag.String("kb-dir", "", "override the knowledge base directory")
	flag.Parse()

	if err := logger.Init("output/logs"); err != nil {
		fmt.Fprintf(os.Stderr, "kb ingest failed: %v\n", err)
		os.Exit(2)
	}

	cfgManager, err := config.NewManager(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kb ingest failed: %v\n", err)
		os.Exit(2)
	}
	cfg := cfgManager.Get()
	secrets := config.LoadSecrets()
	if secrets.OpenAIAPIKey == "" {
		fmt.Fprintln(os.Stderr, "kb ingest failed: OPENAI_API_KEY is not set")
		os.Exit(2)
	}

	database, err := store.NewSQLiteDB(*dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kb ingest failed: %v\n", err)
		os.Exit(2)
	}
	defer database.Close()

	dir := cfg.KB.Dir
	if *kbDir != "" {
		dir = *kbDir
	}

	client := llm.NewClient(secrets.OpenAIAPIKey, cfg.LLM.BaseURL, time.Duration(cfg.LLM.RequestTimeoutSec)*time.Second)
	manager := kb.NewManager(store.NewChunkStore(database), client, kb.Options{
		Dir:          dir,
		ChunkSize:    cfg.KB.ChunkSize,
		ChunkOverlap: cfg.KB.ChunkOverlap,
		RetrieveK:    cfg.KB.RetrieveK,
		Model:        cfg.LLM.EmbeddingModel,
	})

	fmt.Println("Ingesting knowledge base...")
	summary, err := manager.Ingest(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "kb ingest failed: %v\n", err)
		os.Exit(2)
	}
	fmt.Printf("Done. Ingested %d chunks from %d files.\n", summary.Chunks, summary.Files)
}
