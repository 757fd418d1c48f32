package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/oculair/context-enrichment-webhook/internal/clients/chatbridge"
	"github.com/oculair/context-enrichment-webhook/internal/clients/graphknowledge"
	"github.com/oculair/context-enrichment-webhook/internal/clients/registry"
	"github.com/oculair/context-enrichment-webhook/internal/clients/runtime"
	"github.com/oculair/context-enrichment-webhook/internal/clients/toolattach"
	"github.com/oculair/context-enrichment-webhook/internal/config"
	"github.com/oculair/context-enrichment-webhook/internal/memoryblock"
	"github.com/oculair/context-enrichment-webhook/internal/notifyworker"
	"github.com/oculair/context-enrichment-webhook/internal/pipeline"
	"github.com/oculair/context-enrichment-webhook/internal/server"
	"github.com/oculair/context-enrichment-webhook/internal/toolinventory"
	"github.com/oculair/context-enrichment-webhook/internal/tracker"
)

func newLogger() *slog.Logger {
	var handler slog.Handler
	if os.Getenv("LOG_FORMAT") == "text" {
		handler = slog.NewTextHandler(os.Stdout, nil)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	}
	return slog.New(handler)
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment as-is")
	}

	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration error, refusing to start", slog.Any("error", err))
		os.Exit(1)
	}

	graphClient, err := graphknowledge.New(cfg.GraphitiURL)
	if err != nil {
		logger.Error("configuration error", slog.Any("error", err))
		os.Exit(1)
	}

	runtimeClient, err := runtime.New(cfg.LettaBaseURL, cfg.LettaPassword)
	if err != nil {
		logger.Error("configuration error", slog.Any("error", err))
		os.Exit(1)
	}

	registryClient, err := registry.New(cfg.AgentRegistryURL)
	if err != nil {
		logger.Error("configuration error", slog.Any("error", err))
		os.Exit(1)
	}

	toolAttachClient, err := toolattach.New(cfg.ToolAttachmentURL)
	if err != nil {
		logger.Error("configuration error", slog.Any("error", err))
		os.Exit(1)
	}

	chatBridgeClient, err := chatbridge.New(cfg.MatrixClientURL)
	if err != nil {
		logger.Error("configuration error", slog.Any("error", err))
		os.Exit(1)
	}

	memoryManager := memoryblock.New(runtimeClient)
	agentTracker := tracker.New()
	recency := toolinventory.NewRecency()

	notifyPool := notifyworker.New(2, chatBridgeClient, logger)
	notifyPool.Start(context.Background())
	defer notifyPool.Stop()

	orchestrator := pipeline.New(
		graphClient,
		registryClient,
		toolAttachClient,
		runtimeClient,
		memoryManager,
		agentTracker,
		notifyPool,
		recency,
		pipeline.Config{
			GraphitiMaxNodes:       cfg.GraphitiMaxNodes,
			GraphitiMaxFacts:       cfg.GraphitiMaxFacts,
			AgentRegistryMaxAgents: cfg.AgentRegistryMaxAgents,
			AgentRegistryMinScore:  cfg.AgentRegistryMinScore,
			ToolAttachmentLimit:    cfg.ToolAttachmentLimit,
			ToolAttachmentMinScore: cfg.ToolAttachmentMinScore,
			ProtectedTools:         cfg.ProtectedTools,
		},
		logger,
	)

	srv := server.New(orchestrator, agentTracker, logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logger.Info("starting server", slog.String("port", port))
	if err := srv.Router().Run(":" + port); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
