package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/slovoapp/slovo/internal/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "slovo",
		Short: "Slovo - voice assistant agent runtime",
		Long: `Slovo is the agent runtime behind a local-first voice assistant.
It runs a five-agent pipeline over a three-layer memory and executes
approved tools in an isolated sandbox.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			setupLogging(cfg.LogLevel)
			return nil
		},
	}

	rootCmd.AddCommand(
		serveCmd(),
		consoleCmd(),
		toolCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// configCmd shows the resolved configuration with secrets masked
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("Current configuration:")
			fmt.Println()

			fmt.Println("Server:")
			fmt.Printf("  Host:         %s\n", cfg.Server.Host)
			fmt.Printf("  Port:         %d\n", cfg.Server.Port)
			fmt.Printf("  Secret Key:   %s\n", config.MaskedSecret(cfg.Server.SecretKey))
			fmt.Printf("  CORS Origins: %v\n", cfg.Server.CORSOrigins)
			fmt.Println()

			fmt.Println("Stores:")
			fmt.Printf("  Redis:       %s\n", cfg.Stores.RedisURL)
			fmt.Printf("  Qdrant:      %s\n", cfg.Stores.QdrantURL)
			fmt.Printf("  Postgres:    %s\n", config.MaskedSecret(cfg.Stores.DatabaseURL))
			fmt.Printf("  Session TTL: %ds\n", cfg.Stores.SessionTTLSeconds)
			fmt.Println()

			fmt.Println("LLM:")
			fmt.Printf("  Provider:    %s\n", cfg.LLM.Provider)
			fmt.Printf("  Model:       %s\n", cfg.LLM.Model)
			fmt.Printf("  Base URL:    %s\n", cfg.LLM.BaseURL)
			fmt.Printf("  Max Tokens:  %d\n", cfg.LLM.MaxTokens)
			fmt.Printf("  Temperature: %.2f\n", cfg.LLM.Temperature)
			fmt.Printf("  OpenAI Key:    %s\n", config.MaskedSecret(cfg.LLM.OpenAIAPIKey))
			fmt.Printf("  Anthropic Key: %s\n", config.MaskedSecret(cfg.LLM.AnthropicAPIKey))
			fmt.Println()

			fmt.Println("Embedding:")
			fmt.Printf("  URL:        %s\n", cfg.Embedding.URL)
			fmt.Printf("  Model:      %s\n", cfg.Embedding.Model)
			fmt.Printf("  Dimensions: %d\n", cfg.Embedding.Dimensions)
			fmt.Println()

			fmt.Println("Agent:")
			fmt.Printf("  Max Retries: %d\n", cfg.Agent.MaxRetries)
			fmt.Printf("  Timeout:     %ds\n", cfg.Agent.TimeoutSeconds)
			fmt.Printf("  Log Level:   %s\n", cfg.LogLevel)

			return nil
		},
	}
}

// versionCmd shows version information
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("slovo %s\n", config.Version)
		},
	}
}
