package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/slovoapp/slovo/internal/adapters/crypto"
	"github.com/slovoapp/slovo/internal/adapters/embedding"
	"github.com/slovoapp/slovo/internal/adapters/id"
	"github.com/slovoapp/slovo/internal/adapters/postgres"
	"github.com/slovoapp/slovo/internal/adapters/qdrant"
	"github.com/slovoapp/slovo/internal/adapters/redis"
	"github.com/slovoapp/slovo/internal/adapters/sandbox"
	"github.com/slovoapp/slovo/internal/application/agents"
	"github.com/slovoapp/slovo/internal/application/memory"
	"github.com/slovoapp/slovo/internal/application/orchestrator"
	"github.com/slovoapp/slovo/internal/application/services"
	"github.com/slovoapp/slovo/internal/config"
	"github.com/slovoapp/slovo/internal/llm"
	"github.com/slovoapp/slovo/internal/ports"
)

// Shared across commands, set in PersistentPreRunE
var cfg *config.Config

// runtime bundles everything the serve and console commands need. Any
// of memory, tools, and llmClient may be nil after a degraded start.
type runtime struct {
	ids          ports.IDGenerator
	llmClient    llm.Client
	memory       ports.MemoryManager
	tools        ports.ToolService
	orchestrator ports.Orchestrator
	pool         *pgxpool.Pool
	closers      []func()
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// setupLogging installs the default slog handler at the configured level
func setupLogging(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// initRuntime wires stores, agents, and services. Store failures degrade
// rather than abort: the pipeline still answers without memory or tools.
func initRuntime(ctx context.Context) (*runtime, error) {
	rt := &runtime{ids: id.New()}

	passphrase, isDefault := cfg.EncryptionPassphrase()
	if isDefault {
		slog.Warn("using the built-in development encryption passphrase; set SLOVO_ENCRYPTION_KEY")
	}
	cryptoSvc, err := crypto.NewService(passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}

	var embedder ports.EmbeddingService
	if cfg.Embedding.URL != "" && cfg.Embedding.APIKey != "" {
		embedder = embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	} else {
		slog.Warn("embedding service not configured, semantic memory disabled")
	}

	client, err := llm.NewClient(llm.ClientConfig{
		Provider:        cfg.LLM.Provider,
		Model:           cfg.LLM.Model,
		MaxTokens:       cfg.LLM.MaxTokens,
		Temperature:     cfg.LLM.Temperature,
		Timeout:         time.Duration(cfg.Agent.TimeoutSeconds) * time.Second,
		OpenAIAPIKey:    cfg.LLM.OpenAIAPIKey,
		OpenAIBaseURL:   cfg.LLM.BaseURL,
		AnthropicAPIKey: cfg.LLM.AnthropicAPIKey,
	})
	if err != nil {
		slog.Warn("language model unavailable, using lexical fallbacks", "error", err)
	} else {
		rt.llmClient = client
	}

	pool, err := connectPostgres(ctx)
	if err != nil {
		slog.Warn("postgres unavailable, durable memory and tools disabled", "error", err)
	} else {
		rt.pool = pool
		rt.closers = append(rt.closers, pool.Close)
	}

	var sessions ports.SessionStore
	sessionTTL := time.Duration(cfg.Stores.SessionTTLSeconds) * time.Second
	if redisStore, err := redis.NewStore(cfg.Stores.RedisURL, sessionTTL); err != nil {
		slog.Warn("redis unavailable, ephemeral memory disabled", "error", err)
	} else {
		sessions = redisStore
		rt.closers = append(rt.closers, func() { _ = redisStore.Close() })
	}

	var semantic ports.SemanticStore
	if embedder != nil {
		if qdrantStore, err := qdrant.NewStore(cfg.Stores.QdrantURL, "", embedder.Dimensions(), cryptoSvc); err != nil {
			slog.Warn("qdrant unavailable, semantic memory disabled", "error", err)
		} else {
			semantic = qdrantStore
			rt.closers = append(rt.closers, func() { _ = qdrantStore.Close() })
		}
	}

	if rt.pool != nil {
		var sandboxExec ports.SandboxExecutor
		if dockerExec, err := sandbox.NewExecutor(ctx, rt.ids); err != nil {
			slog.Warn("docker unavailable, tool execution disabled", "error", err)
		} else {
			sandboxExec = dockerExec
		}
		rt.tools = services.NewToolService(
			postgres.NewToolRepository(rt.pool),
			sandboxExec,
			rt.ids,
			services.NewDiscoverer(rt.llmClient),
		)
	}

	// Each memory layer degrades on its own: whatever stores came up are
	// wired and the manager reports the rest as unavailable.
	if rt.pool != nil || sessions != nil || semantic != nil {
		deps := memory.ManagerDeps{
			Sessions: sessions,
			Semantic: semantic,
			Embedder: embedder,
			IDs:      rt.ids,
			Tools:    rt.tools,
		}
		if rt.pool != nil {
			deps.Profiles = postgres.NewProfileRepository(rt.pool)
			deps.Prefs = postgres.NewPreferenceRepository(rt.pool, cryptoSvc)
			deps.Episodic = postgres.NewEpisodicRepository(rt.pool, cryptoSvc)
			deps.Metadata = postgres.NewMetadataRepository(rt.pool)
			deps.Admin = postgres.NewAdmin(rt.pool)
			deps.Txm = postgres.NewTransactionManager(rt.pool)
		}
		rt.memory = memory.NewManager(deps)
		if rt.pool == nil || sessions == nil || semantic == nil {
			slog.Warn("memory system degraded, one or more layers unavailable")
		}
	} else {
		slog.Warn("memory system disabled, no stores reachable")
	}

	var retriever ports.MemoryRetriever
	if rt.memory != nil {
		retriever = rt.memory
	}

	rt.orchestrator = orchestrator.New(orchestrator.Config{
		Intents:    agents.NewIntentClassifier(rt.llmClient, rt.ids),
		Planner:    agents.NewPlanner(rt.ids),
		Executor:   agents.NewExecutor(rt.llmClient, retriever, rt.tools, rt.ids),
		Verifier:   agents.NewVerifier(),
		Explainer:  agents.NewExplainer(),
		Memory:     rt.memory,
		IDs:        rt.ids,
		MaxRetries: cfg.Agent.MaxRetries,
	})

	return rt, nil
}

func connectPostgres(ctx context.Context) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Stores.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	poolConfig.ConnConfig.RuntimeParams["timezone"] = "UTC"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return pool, nil
}
