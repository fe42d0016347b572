package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/mindmark/mindmark-server/internal/agent/history"
	"github.com/mindmark/mindmark-server/internal/agent/memory"
	"github.com/mindmark/mindmark-server/internal/llm"
	"github.com/mindmark/mindmark-server/internal/model"
	"github.com/mindmark/mindmark-server/internal/session"
	"github.com/mindmark/mindmark-server/internal/websearch"
)

// Factory hands out session-bound agents, caching them per session key so
// repeated turns on the same session reuse one instance. Entries expire
// after a TTL; an agent is never shared across session keys.
type Factory struct {
	cfg    RuntimeConfig
	llm    llm.CompletionClient
	hist   history.Store
	mem    memory.Store
	search websearch.Searcher
	log    zerolog.Logger

	ttl   time.Duration
	limit int

	mu    sync.Mutex
	cache map[session.Key]*cacheEntry
	sf    singleflight.Group

	now func() time.Time
}

type cacheEntry struct {
	agent   *Agent
	expires time.Time
}

// FactoryDeps carries the backends a Factory wires into each agent.
type FactoryDeps struct {
	LLM    llm.CompletionClient
	Hist   history.Store
	Mem    memory.Store
	Search websearch.Searcher
}

// NewFactory creates a factory. ttl bounds how long a cached agent is
// reused; limit caps cache size (0 means unbounded).
func NewFactory(cfg RuntimeConfig, deps FactoryDeps, ttl time.Duration, limit int, log zerolog.Logger) (*Factory, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, fmt.Errorf("agent config: %w", err)
	}
	return &Factory{
		cfg:    cfg,
		llm:    deps.LLM,
		hist:   deps.Hist,
		mem:    deps.Mem,
		search: deps.Search,
		log:    log.With().Str("component", "agent_factory").Logger(),
		ttl:    ttl,
		limit:  limit,
		cache:  make(map[session.Key]*cacheEntry),
		now:    time.Now,
	}, nil
}

// Get returns the agent for key, building one if the cache has no live
// entry. Concurrent callers for the same key share a single build. Before
// constructing a new agent the factory probes the history and memory
// backends; a failed probe surfaces as ErrUnavailable.
func (f *Factory) Get(ctx context.Context, key session.Key) (*Agent, error) {
	if a := f.lookup(key); a != nil {
		return a, nil
	}

	v, err, _ := f.sf.Do(key.String(), func() (interface{}, error) {
		// re-check under singleflight: a concurrent caller may have built it
		if a := f.lookup(key); a != nil {
			return a, nil
		}
		return f.build(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Agent), nil
}

func (f *Factory) lookup(key session.Key) *Agent {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.cache[key]
	if !ok {
		return nil
	}
	if f.now().After(e.expires) {
		delete(f.cache, key)
		return nil
	}
	return e.agent
}

func (f *Factory) build(ctx context.Context, key session.Key) (*Agent, error) {
	if err := f.hist.HealthPing(ctx); err != nil {
		return nil, fmt.Errorf("history store unreachable: %w: %v", model.ErrUnavailable, err)
	}
	if f.cfg.EnableLongTermMemory {
		if err := f.mem.HealthPing(ctx); err != nil {
			return nil, fmt.Errorf("memory store unreachable: %w: %v", model.ErrUnavailable, err)
		}
	}

	a := &Agent{
		key:    key,
		cfg:    f.cfg,
		llm:    f.llm,
		hist:   f.hist,
		mem:    f.mem,
		search: f.search,
		log:    f.log.With().Str("session", key.String()).Logger(),
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.limit > 0 && len(f.cache) >= f.limit {
		f.evictOldestLocked()
	}
	f.cache[key] = &cacheEntry{agent: a, expires: f.now().Add(f.ttl)}
	f.log.Debug().Str("session", key.String()).Int("cache_size", len(f.cache)).Msg("built agent")
	return a, nil
}

// evictOldestLocked drops the entry closest to expiry. Caller holds f.mu.
func (f *Factory) evictOldestLocked() {
	var victim session.Key
	var oldest time.Time
	first := true
	for k, e := range f.cache {
		if first || e.expires.Before(oldest) {
			victim, oldest, first = k, e.expires, false
		}
	}
	if !first {
		delete(f.cache, victim)
	}
}

// Invalidate drops any cached agent for key. Used when a topic is deleted
// so a later session with the same key starts from a fresh instance.
func (f *Factory) Invalidate(key session.Key) {
	f.mu.Lock()
	delete(f.cache, key)
	f.mu.Unlock()
}

// Len reports the number of cached agents, expired entries included.
func (f *Factory) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cache)
}
