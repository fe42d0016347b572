package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the configuration for the mindmark service.
// Environment variables are parsed from the MINDMARK_ prefix, e.g.
// MINDMARK_HTTP_PORT, MINDMARK_POSTGRES_DSN.
type Config struct {
	// Build target selects the high-level environment: local, cloud
	BuildTarget string `envconfig:"BUILD_TARGET" default:"local"`

	// DBDriver selects the relational store: auto, sqlite, postgres
	DBDriver string `envconfig:"DB_DRIVER" default:"auto"`

	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Relational store
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"data/mindmark.sqlite3"`

	// Agent database holds session history and (for the sqlite backend)
	// long-term memory; it is a separate physical store from the primary DB.
	AgentDBPath string `envconfig:"AGENT_DB_PATH" default:"data/memory.sqlite3"`

	// MemoryBackend selects long-term memory storage: sqlite, weaviate
	MemoryBackend string `envconfig:"MEMORY_BACKEND" default:"sqlite"`
	WeaviateURL   string `envconfig:"WEAVIATE_URL" default:"weaviate:8080"`
	EmbedModel    string `envconfig:"EMBED_MODEL" default:"mxbai-embed-large"`
	OllamaURL     string `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`

	// Language model
	ModelProvider string `envconfig:"MODEL_PROVIDER" default:"groq"`
	ModelID       string `envconfig:"MODEL_ID" default:"gemma2-9b-it"`
	ModelAPIKey   string `envconfig:"MODEL_API_KEY" default:""`
	ModelBaseURL  string `envconfig:"MODEL_BASE_URL" default:"https://api.groq.com/openai/v1"`

	// Web search tool
	SearchEnabled   bool   `envconfig:"SEARCH_ENABLED" default:"true"`
	SearchAPIKey    string `envconfig:"SEARCH_API_KEY" default:""`
	SearchBaseURL   string `envconfig:"SEARCH_BASE_URL" default:"https://api.tavily.com"`
	SearchMaxTokens int    `envconfig:"SEARCH_MAX_TOKENS" default:"6000"`

	// Agent session behaviour
	HistoryWindow   int `envconfig:"HISTORY_WINDOW" default:"5"`
	AgentCacheTTL   int `envconfig:"AGENT_CACHE_TTL_SECONDS" default:"300"`
	AgentCacheLimit int `envconfig:"AGENT_CACHE_LIMIT" default:"256"`

	// Auth
	AccessTokenTTLMinutes int `envconfig:"ACCESS_TOKEN_TTL_MINUTES" default:"60"`
	RefreshTokenTTLHours  int `envconfig:"REFRESH_TOKEN_TTL_HOURS" default:"168"`

	// Health monitoring
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"5"`
}

// ResolveDefaults validates BuildTarget and derives DBDriver when set to
// "auto" or empty.
func (c *Config) ResolveDefaults() error {
	var defaultDB string

	switch c.BuildTarget {
	case "local":
		defaultDB = "sqlite"
	case "cloud":
		defaultDB = "postgres"
	default:
		return fmt.Errorf("unsupported BUILD_TARGET: %s", c.BuildTarget)
	}

	if c.DBDriver == "" || c.DBDriver == "auto" {
		c.DBDriver = defaultDB
	}
	allowedDB := map[string]bool{"sqlite": true, "postgres": true}
	if !allowedDB[c.DBDriver] {
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}

	allowedMem := map[string]bool{"sqlite": true, "weaviate": true}
	if !allowedMem[c.MemoryBackend] {
		return fmt.Errorf("unsupported MEMORY_BACKEND: %s", c.MemoryBackend)
	}
	return nil
}

// New creates a Config by parsing MINDMARK_-prefixed environment variables.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("MINDMARK", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetHTTPAddr returns the HTTP server address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
