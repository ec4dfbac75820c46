package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// Version is the runtime version reported by /health and the CLI
	Version = "0.1.0"

	// DefaultSecretKey is the development fallback; never suitable for
	// real deployments.
	DefaultSecretKey = "dev-secret-key-change-in-production"

	maxRetryCeiling = 5
)

// Config holds all configuration for the Slovo agent runtime
type Config struct {
	Server    ServerConfig    `json:"server"`
	Stores    StoresConfig    `json:"stores"`
	LLM       LLMConfig       `json:"llm"`
	Embedding EmbeddingConfig `json:"embedding"`
	Agent     AgentConfig     `json:"agent"`
	LogLevel  string          `json:"log_level"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host        string   `json:"host"`
	Port        int      `json:"port"`
	SecretKey   string   `json:"-"`
	CORSOrigins []string `json:"cors_origins"`
}

// StoresConfig holds the three memory store endpoints
type StoresConfig struct {
	RedisURL          string `json:"redis_url"`
	QdrantURL         string `json:"qdrant_url"`
	DatabaseURL       string `json:"database_url"`
	SessionTTLSeconds int    `json:"session_ttl_seconds"`
}

// LLMConfig holds chat model configuration
type LLMConfig struct {
	Provider        string  `json:"provider"`
	Model           string  `json:"model"`
	BaseURL         string  `json:"base_url"`
	MaxTokens       int     `json:"max_tokens"`
	Temperature     float64 `json:"temperature"`
	OpenAIAPIKey    string  `json:"-"`
	AnthropicAPIKey string  `json:"-"`
}

// EmbeddingConfig holds embedding API configuration
type EmbeddingConfig struct {
	URL        string `json:"url"`
	APIKey     string `json:"-"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

// AgentConfig holds pipeline behaviour knobs
type AgentConfig struct {
	MaxRetries     int `json:"max_retries"`
	TimeoutSeconds int `json:"timeout_seconds"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      "127.0.0.1",
			Port:      8741,
			SecretKey: DefaultSecretKey,
			CORSOrigins: []string{
				"http://localhost:1420",
				"tauri://localhost",
				"https://tauri.localhost",
			},
		},
		Stores: StoresConfig{
			RedisURL:          "redis://localhost:6379",
			QdrantURL:         "http://localhost:6333",
			DatabaseURL:       "postgres://localhost:5432/slovo",
			SessionTTLSeconds: 7200,
		},
		LLM: LLMConfig{
			Provider:    "auto",
			MaxTokens:   4096,
			Temperature: 0.7,
		},
		Embedding: EmbeddingConfig{
			URL:        "https://api.openai.com",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
		},
		Agent: AgentConfig{
			MaxRetries:     2,
			TimeoutSeconds: 60,
		},
		LogLevel: "info",
	}
}

// envString loads a string environment variable into the target pointer if set
func envString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

// envInt loads an integer environment variable into the target pointer if set and valid
func envInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*target = i
		}
	}
}

// envFloat loads a float64 environment variable into the target pointer if set and valid
func envFloat(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}

// envStringSlice loads a comma-separated environment variable into a string slice
func envStringSlice(key string, target *[]string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			*target = result
		}
	}
}

// Load reads .env when present, then the environment, then validates
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	envString("AGENT_HOST", &cfg.Server.Host)
	envInt("AGENT_PORT", &cfg.Server.Port)
	envString("AGENT_SECRET_KEY", &cfg.Server.SecretKey)
	envStringSlice("AGENT_CORS_ORIGINS", &cfg.Server.CORSOrigins)

	envString("REDIS_URL", &cfg.Stores.RedisURL)
	envString("QDRANT_URL", &cfg.Stores.QdrantURL)
	envString("DATABASE_URL", &cfg.Stores.DatabaseURL)
	envInt("SESSION_TTL_SECONDS", &cfg.Stores.SessionTTLSeconds)

	envString("LLM_PROVIDER", &cfg.LLM.Provider)
	envString("LLM_MODEL", &cfg.LLM.Model)
	envString("LLM_BASE_URL", &cfg.LLM.BaseURL)
	envInt("LLM_MAX_TOKENS", &cfg.LLM.MaxTokens)
	envFloat("LLM_TEMPERATURE", &cfg.LLM.Temperature)
	envString("OPENAI_API_KEY", &cfg.LLM.OpenAIAPIKey)
	envString("ANTHROPIC_API_KEY", &cfg.LLM.AnthropicAPIKey)

	envString("EMBEDDING_URL", &cfg.Embedding.URL)
	envString("EMBEDDING_API_KEY", &cfg.Embedding.APIKey)
	envString("EMBEDDING_MODEL", &cfg.Embedding.Model)
	envInt("EMBEDDING_DIMENSIONS", &cfg.Embedding.Dimensions)
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.LLM.OpenAIAPIKey
	}

	envInt("AGENT_MAX_RETRIES", &cfg.Agent.MaxRetries)
	envInt("AGENT_TIMEOUT", &cfg.Agent.TimeoutSeconds)
	envString("LOG_LEVEL", &cfg.LogLevel)

	if cfg.Agent.MaxRetries < 0 {
		cfg.Agent.MaxRetries = 0
	}
	if cfg.Agent.MaxRetries > maxRetryCeiling {
		cfg.Agent.MaxRetries = maxRetryCeiling
	}
	if cfg.Agent.TimeoutSeconds < 1 {
		cfg.Agent.TimeoutSeconds = 1
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EncryptionPassphrase resolves the at-rest encryption key. The boolean
// reports whether the built-in development passphrase was used.
func (c *Config) EncryptionPassphrase() (string, bool) {
	if v := os.Getenv("SLOVO_ENCRYPTION_KEY"); v != "" {
		return v, false
	}
	if c.Server.SecretKey != "" && c.Server.SecretKey != DefaultSecretKey {
		return c.Server.SecretKey, false
	}
	return DefaultSecretKey, true
}

func isValidURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Validate checks that the configuration has valid values
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server port must be between 1 and 65535")
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "LLM temperature must be between 0 and 2")
	}
	if c.LLM.MaxTokens < 1 {
		errs = append(errs, "LLM max_tokens must be positive")
	}

	if !isValidURL(c.Stores.RedisURL) {
		errs = append(errs, "REDIS_URL must be a valid URL")
	}
	if !isValidURL(c.Stores.QdrantURL) {
		errs = append(errs, "QDRANT_URL must be a valid URL")
	}
	if !isValidURL(c.Stores.DatabaseURL) {
		errs = append(errs, "DATABASE_URL must be a valid URL")
	}
	if c.Stores.SessionTTLSeconds < 1 {
		errs = append(errs, "session TTL must be positive")
	}

	if c.Embedding.URL != "" {
		if !isValidURL(c.Embedding.URL) {
			errs = append(errs, "EMBEDDING_URL must be a valid URL")
		}
		if c.Embedding.Dimensions < 1 {
			errs = append(errs, "embedding dimensions must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// MaskedSecret shortens a secret for display
func MaskedSecret(value string) string {
	if value == "" {
		return "(unset)"
	}
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "..." + value[len(value)-4:]
}
