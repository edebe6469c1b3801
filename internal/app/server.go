package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/ragchat-app/ragchat/internal/api/handlers"
	appMiddleware "github.com/ragchat-app/ragchat/internal/api/middlewares"
	"github.com/ragchat-app/ragchat/internal/config"
	"github.com/ragchat-app/ragchat/internal/core"
	"github.com/ragchat-app/ragchat/internal/core/ingest"
	"github.com/ragchat-app/ragchat/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

// NewServer builds and wires all routes.
func NewServer(
	cfg *config.Config,
	log *zap.Logger,
	dbClient core.DbClient,
	index core.VectorIndex,
	ingestor *ingest.Ingestor,
	users *services.UserService,
	documents *services.DocumentService,
	conversations *services.ConversationService,
) *Server {
	authHandler := handlers.NewAuthHandler(users, cfg.JWTSecret)
	docHandler := handlers.NewDocumentHandler(ingestor, documents)
	chatHandler := handlers.NewChatHandler(conversations)
	analyticsHandler := handlers.NewAnalyticsHandler(dbClient, index)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))

			protected.Get("/me", authHandler.Me)
			protected.Delete("/me", authHandler.DeleteAccount)

			protected.Post("/documents/upload", docHandler.Upload)
			protected.Get("/documents", docHandler.List)
			protected.Get("/documents/{document_id}", docHandler.Get)
			protected.Delete("/documents/{document_id}", docHandler.Delete)

			protected.Post("/chat/conversations", chatHandler.Start)
			protected.Get("/chat/conversations", chatHandler.List)
			protected.Get("/chat/conversations/{conversation_id}", chatHandler.Get)
			protected.Post("/chat/conversations/{conversation_id}/messages", chatHandler.Send)
			protected.Delete("/chat/conversations/{conversation_id}", chatHandler.Delete)
			protected.Post("/chat/conversations/{conversation_id}/summary-email", chatHandler.EmailSummary)

			protected.Get("/analytics", analyticsHandler.Get)
			protected.Get("/analytics/index", analyticsHandler.IndexStats)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv, log: log}
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
