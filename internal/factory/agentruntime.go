package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindmark/mindmark-server/internal/agent"
	"github.com/mindmark/mindmark-server/internal/agent/agentdb"
	"github.com/mindmark/mindmark-server/internal/agent/history"
	"github.com/mindmark/mindmark-server/internal/agent/memory"
	"github.com/mindmark/mindmark-server/internal/config"
	"github.com/mindmark/mindmark-server/internal/embeddings/ollama"
	"github.com/mindmark/mindmark-server/internal/llm"
	"github.com/mindmark/mindmark-server/internal/services"
	"github.com/mindmark/mindmark-server/internal/session"
	"github.com/mindmark/mindmark-server/internal/websearch"
)

// AgentRuntime bundles the constructed agent subsystem.
type AgentRuntime struct {
	Agents  services.Agents
	History history.Store
	Memory  memory.Store
	LLM     llm.CompletionClient
}

// NewAgentRuntime wires the completion client, the agent database, the
// long-term memory backend and the per-session agent factory.
func NewAgentRuntime(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*AgentRuntime, error) {
	client, err := newCompletionClient(cfg)
	if err != nil {
		return nil, err
	}

	db, err := agentdb.Open(cfg.AgentDBPath)
	if err != nil {
		return nil, fmt.Errorf("open agent database: %w", err)
	}
	hist := history.NewSQLiteStore(db)

	var mem memory.Store
	switch cfg.MemoryBackend {
	case "sqlite":
		mem = memory.NewSQLiteStore(db)
	case "weaviate":
		emb := ollama.New(cfg.OllamaURL, cfg.EmbedModel)
		wv, err := memory.NewWeaviateStore(cfg.WeaviateURL, emb)
		if err != nil {
			return nil, fmt.Errorf("connect weaviate memory backend: %w", err)
		}
		if err := wv.Bootstrap(ctx); err != nil {
			log.Warn().Err(err).Str("url", cfg.WeaviateURL).Msg("weaviate bootstrap failed; recall may miss until the class exists")
		}
		mem = wv
	default:
		return nil, fmt.Errorf("unknown MEMORY_BACKEND: %s", cfg.MemoryBackend)
	}

	var search websearch.Searcher
	if cfg.SearchEnabled && cfg.SearchAPIKey != "" {
		search = websearch.NewTavilyClient(cfg.SearchBaseURL, cfg.SearchAPIKey, cfg.SearchMaxTokens)
	}

	rt := agent.RuntimeConfig{
		ModelID:                cfg.ModelID,
		EnableLongTermMemory:   true,
		EnableHistoryInjection: true,
		HistoryWindow:          cfg.HistoryWindow,
		EnableSearch:           search != nil,
	}
	f, err := agent.NewFactory(rt, agent.FactoryDeps{
		LLM:    client,
		Hist:   hist,
		Mem:    mem,
		Search: search,
	}, time.Duration(cfg.AgentCacheTTL)*time.Second, cfg.AgentCacheLimit, log)
	if err != nil {
		return nil, err
	}

	return &AgentRuntime{
		Agents:  agentSource{f},
		History: hist,
		Memory:  mem,
		LLM:     client,
	}, nil
}

func newCompletionClient(cfg *config.Config) (llm.CompletionClient, error) {
	switch cfg.ModelProvider {
	case "groq":
		if cfg.ModelAPIKey == "" {
			return nil, fmt.Errorf("MINDMARK_MODEL_API_KEY is required for the groq provider")
		}
		return llm.NewGroqClient(cfg.ModelBaseURL, cfg.ModelAPIKey), nil
	default:
		return nil, fmt.Errorf("unknown MODEL_PROVIDER: %s", cfg.ModelProvider)
	}
}

// agentSource adapts *agent.Factory to the services.Agents interface.
type agentSource struct {
	f *agent.Factory
}

func (s agentSource) Get(ctx context.Context, key session.Key) (services.Agent, error) {
	a, err := s.f.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s agentSource) Invalidate(key session.Key) { s.f.Invalidate(key) }
