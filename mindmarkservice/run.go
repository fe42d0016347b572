// Package mindmarkservice boots the HTTP service: configuration, storage,
// the agent runtime, health monitoring and graceful shutdown.
package mindmarkservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindmark/mindmark-server/internal/api"
	"github.com/mindmark/mindmark-server/internal/auth"
	"github.com/mindmark/mindmark-server/internal/config"
	"github.com/mindmark/mindmark-server/internal/factory"
	"github.com/mindmark/mindmark-server/internal/health"
	"github.com/mindmark/mindmark-server/internal/logger"
	"github.com/mindmark/mindmark-server/internal/services"
	"github.com/mindmark/mindmark-server/internal/session"
	"github.com/mindmark/mindmark-server/internal/store"
)

// Run starts the mindmark HTTP server and blocks until shutdown or error.
func Run() error {
	log := logger.New("mindmark-service")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Str("memory_backend", cfg.MemoryBackend).
		Str("model_provider", cfg.ModelProvider).
		Str("model_id", cfg.ModelID).
		Int("http_port", cfg.HTTPPort).
		Msg("mindmark service starting")

	ctx, stop := newServerContext()
	defer stop()

	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("store unavailable")
		return err
	}

	rt, err := factory.NewAgentRuntime(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("agent runtime unavailable")
		return err
	}

	router := buildRouter(cfg, st, rt, log)

	svcHealth := startHealthCheckers(ctx, cfg, log, st, rt)
	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

func buildRouter(cfg *config.Config, st store.Store, rt *factory.AgentRuntime, log zerolog.Logger) http.Handler {
	issuer := auth.NewTokenIssuer(st,
		time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute,
		time.Duration(cfg.RefreshTokenTTLHours)*time.Hour)

	return api.NewRouter(api.Deps{
		Users:      services.NewUserService(st),
		Topics:     services.NewTopicService(st, rt.Agents),
		Messages:   services.NewMessageService(st),
		Turns:      services.NewTurnService(st, session.NewResolver(st), rt.Agents, log),
		Issuer:     issuer,
		Authorizer: auth.NewTokenAuthorizer(st),
	})
}

// startHealthCheckers monitors the store and agent backends and binds the
// aggregate to the health endpoint.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, st store.Store, rt *factory.AgentRuntime) *health.ServiceHealthChecker {
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	var checkers []health.HealthChecker
	add := func(name string, p health.HealthPinger) {
		c := health.NewPingChecker(name, p, log, probeTimeout)
		go c.Start(ctx, interval)
		checkers = append(checkers, c)
	}

	if p, ok := st.(health.HealthPinger); ok {
		add("store", p)
	}
	add("agent_history", rt.History)
	add("agent_memory", rt.Memory)
	if p, ok := rt.LLM.(health.HealthPinger); ok {
		add("model_provider", p)
	}

	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	go svcHealth.Start(ctx, interval)
	api.BindServiceHealth(svcHealth.IsHealthy)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// Chat turns wait on the model provider; keep the write window
		// well above the typical completion latency.
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// startupHealthTimeout returns the startup health window in seconds,
// interval*2 with a 60 second floor.
func startupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

// waitUntilHealthy blocks until service health is healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	timeoutSeconds := startupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
