package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpserver "github.com/slovoapp/slovo/internal/adapters/http"
	"github.com/slovoapp/slovo/internal/adapters/tracing"
)

// serveCmd starts the HTTP API server
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the Slovo agent runtime and its HTTP API.

The runtime degrades gracefully: when Redis, Qdrant, or Postgres are
unreachable the pipeline still answers, memory routes return 503, and
tool execution is disabled without Docker.

Configuration is read from the environment and an optional .env file:
  AGENT_HOST, AGENT_PORT, REDIS_URL, QDRANT_URL, DATABASE_URL,
  LLM_PROVIDER, OPENAI_API_KEY, ANTHROPIC_API_KEY`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(ctx context.Context) error {
	slog.Info("starting slovo agent runtime",
		"http", fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port),
		"llm_provider", cfg.LLM.Provider,
	)

	shutdownTracer, err := tracing.InitTracer()
	if err != nil {
		slog.Warn("failed to initialize tracing", "error", err)
	} else {
		defer func() {
			if err := shutdownTracer(ctx); err != nil {
				slog.Error("error shutting down tracer", "error", err)
			}
		}()
	}

	rt, err := initRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	server := httpserver.NewServer(cfg, rt.orchestrator, rt.memory, rt.ids)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		slog.Info("shutting down", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		slog.Info("server stopped")
		return nil
	}
}
