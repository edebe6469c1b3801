package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ragchat-app/ragchat/internal/config"
	"github.com/ragchat-app/ragchat/internal/core/chunker"
	db "github.com/ragchat-app/ragchat/internal/core/database"
	"github.com/ragchat-app/ragchat/internal/core/email"
	"github.com/ragchat-app/ragchat/internal/core/extract"
	"github.com/ragchat-app/ragchat/internal/core/ingest"
	"github.com/ragchat-app/ragchat/internal/core/llm"
	objectclient "github.com/ragchat-app/ragchat/internal/core/object-client"
	"github.com/ragchat-app/ragchat/internal/core/vectorindex"
	"github.com/ragchat-app/ragchat/internal/services"
)

// vectorCollection names the pgvector table holding all chunk embeddings.
const vectorCollection = "document_vectors"

type App struct {
	Log      *zap.Logger
	DBClient *db.DatabaseClient
	Ingestor *ingest.Ingestor
	Server   *Server

	embedder *llm.GeminiEmbedder
	llm      *llm.GeminiLLM
}

// NewApp wires the full service: database, vector index, object storage,
// AI providers, mailer, pipeline, services and HTTP server. Startup fails
// fast on any misconfiguration, including an embedding dimension that does
// not match the configured index.
func NewApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	log.Info("database initialized and ready")

	index, err := vectorindex.NewPgVectorIndex(dbClient.DB(), vectorCollection, cfg.EmbedDim, log)
	if err != nil {
		return nil, fmt.Errorf("vector index: %w", err)
	}
	if err := index.EnsureCollection(appCtx); err != nil {
		return nil, fmt.Errorf("vector index: %w", err)
	}
	log.Info("vector collection ready",
		zap.String("collection", vectorCollection),
		zap.Int("dimension", cfg.EmbedDim))

	objClient, err := objectclient.NewS3Client(appCtx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("object storage: %w", err)
	}

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel, cfg.EmbedDim, log)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	if err := embedder.VerifyDimension(appCtx); err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel, llm.DecodingParams{
		Temperature:     float32(cfg.Temperature),
		TopP:            float32(cfg.TopP),
		MaxOutputTokens: int32(cfg.MaxOutputTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	mailer, err := email.NewSMTPMailer(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("mailer: %w", err)
	}

	extractor := extract.NewDocExtractor(log)
	splitter := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)

	ingestor := ingest.NewIngestor(dbClient, objClient, extractor, embedder, index, splitter, ingest.Limits{
		MaxFileSize:  int64(cfg.MaxFileSizeMB) << 20,
		AllowedTypes: cfg.AllowedFileTypes,
	}, log)

	retrieval := services.NewRetrievalService(embedder, index, dbClient, cfg.TopK, log)
	conversations := services.NewConversationService(dbClient, retrieval, llmProvider, mailer, cfg.HistoryLimit, log)
	documents := services.NewDocumentService(dbClient, objClient, index, log)
	users := services.NewUserService(dbClient, index, mailer, log)

	server := NewServer(cfg, log, dbClient, index, ingestor, users, documents, conversations)

	return &App{
		Log:      log,
		DBClient: dbClient,
		Ingestor: ingestor,
		Server:   server,
		embedder: embedder,
		llm:      llmProvider,
	}, nil
}

// Run starts the pipeline workers and the HTTP server, then blocks until ctx
// is cancelled and the server has drained.
func (a *App) Run(ctx context.Context) error {
	a.Ingestor.Start(ctx, 2)
	if err := a.Ingestor.Recover(ctx); err != nil {
		a.Log.Warn("failed to sweep interrupted documents", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return a.Server.Shutdown(shutdownCtx)
}

func (a *App) Close() {
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.llm != nil {
		_ = a.llm.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
