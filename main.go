package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "crmpilot/app/configs"
	"crmpilot/app/core/handlers"
	"crmpilot/app/core/interaction/cli"
	serverhttp "crmpilot/app/core/interaction/http"
	"crmpilot/app/core/kb"
	"crmpilot/app/core/llm"
	"crmpilot/app/core/odoo"
	"crmpilot/app/core/queue"
	"crmpilot/app/core/router"
	"crmpilot/app/core/store"
	"crmpilot/app/core/workflow"
	"crmpilot/app/pkg/logger"
)

func main() {
	cliMode := flag.Bool("cli", false, "run the interactive CLI instead of the HTTP server")
	configPath := flag.String("config", config.DefaultPath(), "path to config file")
	flag.Parse()

	if err := logger.Init("output/logs"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.Info("CRM Pilot starting...")

	cfgManager, err := config.NewManager(*configPath)
	if err != nil {
		logger.Error("Failed to load config: %v", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()

	secrets := config.LoadSecrets()
	if secrets.OpenAIAPIKey == "" {
		logger.Error("OPENAI_API_KEY is not set")
		os.Exit(1)
	}
	if secrets.OdooAPIKey == "" {
		logger.Error("ODOO_API_KEY is not set")
		os.Exit(1)
	}

	database, err := store.NewSQLiteDB("output/db")
	if err != nil {
		logger.Error("Failed to initialize DB: %v", err)
		os.Exit(1)
	}
	defer database.Close()
	logger.Info("Database initialized successfully")

	historyStore := store.NewHistoryStore(database)
	auditStore := store.NewAuditStore(database)
	chunkStore := store.NewChunkStore(database)

	odooClient := odoo.NewClient(cfg.Odoo.URL, cfg.Odoo.Database, cfg.Odoo.User, secrets.OdooAPIKey,
		time.Duration(cfg.Odoo.TimeoutSec)*time.Second)
	llmClient := llm.NewClient(secrets.OpenAIAPIKey, cfg.LLM.BaseURL,
		time.Duration(cfg.LLM.RequestTimeoutSec)*time.Second)

	kbManager := kb.NewManager(chunkStore, llmClient, kb.Options{
		Dir:          cfg.KB.Dir,
		ChunkSize:    cfg.KB.ChunkSize,
		ChunkOverlap: cfg.KB.ChunkOverlap,
		RetrieveK:    cfg.KB.RetrieveK,
		Model:        cfg.LLM.EmbeddingModel,
	})

	registry := workflow.NewRegistry()
	registry.Register(workflow.NewLeadQualification(odooClient))
	registry.Register(workflow.NewOpportunityFollowUp(odooClient))
	registry.Register(workflow.NewCustomerOnboarding(odooClient))
	registry.Register(workflow.NewLostLeadRecovery(odooClient))
	runner := workflow.NewRunner(registry, auditStore)

	knowledgeHandler := handlers.NewKnowledge(llmClient, kbManager, cfg.LLM.KnowledgeModel, cfg.KB.RetrieveK, cfg.LLM.MaxToolIterations)
	dataOpsHandler := handlers.NewDataOps(llmClient, odooClient, cfg.LLM.DataOpsModel, cfg.LLM.MaxToolIterations)
	workflowHandler := handlers.NewWorkflowHandler(llmClient, runner, registry, odooClient, cfg.LLM.WorkflowModel, cfg.LLM.MaxToolIterations)
	fallbackHandler := handlers.NewFallback(llmClient, cfg.LLM.RouterModel)

	chatRouter := router.New(llmClient, cfg.LLM.RouterModel, historyStore,
		knowledgeHandler, dataOpsHandler, workflowHandler, fallbackHandler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	webhookQueue := queue.New(cfg.Webhook.QueueBuffer)
	if err := webhookQueue.Start(ctx, cfg.Webhook.Workers); err != nil {
		logger.Error("Failed to start webhook queue: %v", err)
		os.Exit(1)
	}
	defer func() {
		if err := webhookQueue.Stop(10 * time.Second); err != nil {
			logger.Error("Webhook queue shutdown timeout: %v", err)
		}
	}()

	if *cliMode {
		channel := cli.NewCLIChannel(chatRouter, "")
		if err := channel.Start(ctx); err != nil {
			logger.Error("CLI crashed: %v", err)
			os.Exit(1)
		}
		return
	}

	server := serverhttp.NewServer(cfg.Server.Port, chatRouter, runner, registry, auditStore, historyStore, kbManager, webhookQueue)
	go func() {
		if err := server.Start(ctx); err != nil {
			logger.Error("HTTP server crashed: %v", err)
			os.Exit(1)
		}
	}()

	logger.Info("CRM Pilot is ready to serve.")
	fmt.Printf("- Chat API:      http://localhost:%d/api/chat (POST)\n", cfg.Server.Port)
	fmt.Printf("- Workflows API: http://localhost:%d/api/workflows\n", cfg.Server.Port)
	fmt.Printf("- Webhooks:      http://localhost:%d/api/webhooks/odoo (POST)\n", cfg.Server.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal: %v. CRM Pilot shutting down...", sig)
	cancel()
}
