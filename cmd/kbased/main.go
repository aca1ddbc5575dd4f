package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/knoguchi/kbase/internal/analytics"
	"github.com/knoguchi/kbase/internal/cache"
	"github.com/knoguchi/kbase/internal/config"
	"github.com/knoguchi/kbase/internal/embedder"
	"github.com/knoguchi/kbase/internal/ingestion"
	"github.com/knoguchi/kbase/internal/llm"
	"github.com/knoguchi/kbase/internal/repository"
	"github.com/knoguchi/kbase/internal/repository/postgres"
	"github.com/knoguchi/kbase/internal/reranker"
	"github.com/knoguchi/kbase/internal/search"
	"github.com/knoguchi/kbase/internal/server"
	"github.com/knoguchi/kbase/internal/service"
)

func main() {
	// Set up structured logging
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("starting knowledge base service",
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
	)

	// Initialize PostgreSQL (pgvector)
	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	slog.Info("connected to PostgreSQL")

	documentRepo := postgres.NewDocumentRepo(db)
	chunkRepo := postgres.NewChunkRepo(db)

	// Initialize Ollama embedder
	embed := embedder.NewOllamaEmbedder(embedder.OllamaConfig{
		BaseURL:   cfg.OllamaURL,
		Model:     cfg.OllamaEmbeddingModel,
		Dimension: cfg.EmbeddingDimension,
	})
	if known := embedder.DimensionFor(cfg.OllamaEmbeddingModel, cfg.EmbeddingDimension); known != cfg.EmbeddingDimension {
		return fmt.Errorf("embedding model %s produces %d-dimensional vectors, configured dimension is %d",
			cfg.OllamaEmbeddingModel, known, cfg.EmbeddingDimension)
	}
	slog.Info("initialized Ollama embedder",
		"model", cfg.OllamaEmbeddingModel,
		"dimension", embed.Dimension(),
	)

	// Initialize Ollama LLM
	llmClient := llm.NewOllamaClient(
		llm.WithBaseURL(cfg.OllamaURL),
		llm.WithModel(cfg.OllamaLLMModel),
	)
	slog.Info("initialized Ollama LLM", "model", cfg.OllamaLLMModel)

	// Retrieval pipeline, with the cross-encoder scorer when configured
	pipelineOpts := []search.PipelineOption{
		search.WithBaseThreshold(cfg.MinSimilarityScore),
		search.WithMMRLambda(cfg.MMRLambda),
		search.WithLogger(slog.Default()),
	}
	if cfg.RerankerURL != "" {
		scorer := reranker.NewHTTPScorer(cfg.RerankerURL,
			reranker.WithHTTPClient(&http.Client{Timeout: cfg.RerankerTimeout}),
		)
		pipelineOpts = append(pipelineOpts, search.WithPairScorer(scorer))
		slog.Info("initialized cross-encoder reranker", "url", cfg.RerankerURL)
	} else {
		slog.Info("reranker disabled, rerank requests fall back to fused order")
	}
	pipeline := search.NewPipeline(chunkRepo, embed, pipelineOpts...)

	respCache := cache.New(
		cache.WithMaxSize(cfg.CacheMaxSize),
		cache.WithTTL(cfg.CacheTTL),
	)
	tracker := analytics.NewTracker()

	askSvc := service.NewAskService(pipeline, llmClient, respCache, tracker, service.AskConfig{
		DefaultTopK: cfg.DefaultTopK,
		Model:       cfg.OllamaLLMModel,
		Logger:      slog.Default(),
	})
	documentSvc := service.NewDocumentService(
		documentRepo,
		chunkRepo,
		embed,
		ingestion.NewChunker(ingestion.Config{
			TargetSize: cfg.ChunkTargetSize,
			Overlap:    cfg.ChunkOverlap,
		}),
		tracker,
		slog.Default(),
	)

	handlers := server.NewHandlers(server.HandlersConfig{
		Ask:            askSvc,
		Documents:      documentSvc,
		Tracker:        tracker,
		Ready:          db.Pool.Ping,
		Logger:         slog.Default(),
		MaxUploadBytes: int64(cfg.MaxUploadSizeMB) << 20,
	})

	httpServer := server.NewHTTPServer(server.Config{
		Port:           cfg.HTTPPort,
		Logger:         slog.Default(),
		AllowedOrigins: []string{"*"}, // Configure in production
		APIKey:         cfg.APIKey,
		AskRateLimit:   cfg.AskRateLimit,
	}, handlers)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown HTTP server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}

// Ensure interfaces are satisfied at compile time
var (
	_ repository.DocumentRepository = (*postgres.DocumentRepo)(nil)
	_ repository.ChunkRepository    = (*postgres.ChunkRepo)(nil)
	_ embedder.Embedder             = (*embedder.OllamaEmbedder)(nil)
	_ llm.LLM                       = (*llm.OllamaClient)(nil)
	_ reranker.PairScorer           = (*reranker.HTTPScorer)(nil)
)
