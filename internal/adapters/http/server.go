package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slovoapp/slovo/internal/adapters/http/handlers"
	"github.com/slovoapp/slovo/internal/adapters/http/middleware"
	"github.com/slovoapp/slovo/internal/config"
	"github.com/slovoapp/slovo/internal/ports"
)

type Server struct {
	config       *config.Config
	router       *chi.Mux
	httpServer   *http.Server
	orchestrator ports.Orchestrator
	memory       ports.MemoryManager
	ids          ports.IDGenerator
}

func NewServer(
	cfg *config.Config,
	orchestrator ports.Orchestrator,
	memory ports.MemoryManager,
	ids ports.IDGenerator,
) *Server {
	s := &Server{
		config:       cfg,
		orchestrator: orchestrator,
		memory:       memory,
		ids:          ids,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS(s.config.Server.CORSOrigins))
	r.Use(middleware.Metrics)

	healthHandler := handlers.NewHealthHandler(config.Version)
	r.Get("/health", healthHandler.Handle)
	r.Handle("/metrics", promhttp.Handler())

	chatHandler := handlers.NewChatHandler(s.orchestrator, s.memory, s.ids)
	memoryHandler := handlers.NewMemoryHandler(s.memory)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", chatHandler.Chat)
		r.Post("/chat/stream", chatHandler.ChatStream)
		r.Get("/conversation/{id}", chatHandler.GetConversation)

		r.Get("/memory", memoryHandler.List)
		r.Post("/memory/reset", memoryHandler.Reset)
		r.Get("/memory/profile", memoryHandler.GetProfile)
		r.Put("/memory/profile", memoryHandler.UpdateProfile)
		r.Get("/memory/health", memoryHandler.Health)
		r.Get("/memory/{id}", memoryHandler.Get)
		r.Put("/memory/{id}", memoryHandler.Update)
		r.Delete("/memory/{id}", memoryHandler.Delete)
	})

	s.router = r
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming responses have no deadline
		IdleTimeout:  120 * time.Second,
	}

	slog.Info("starting HTTP server", "addr", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	slog.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *chi.Mux {
	return s.router
}
