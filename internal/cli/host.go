package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/ramsred/agentic-platform-mcp/internal/config"
	"github.com/ramsred/agentic-platform-mcp/internal/logger"
	"github.com/ramsred/agentic-platform-mcp/internal/metrics"
	"github.com/ramsred/agentic-platform-mcp/internal/observability"
	"github.com/ramsred/agentic-platform-mcp/pkg/agentloop"
	"github.com/ramsred/agentic-platform-mcp/pkg/engine"
	"github.com/ramsred/agentic-platform-mcp/pkg/policy"
	"github.com/ramsred/agentic-platform-mcp/pkg/registry"
)

// host bundles the wired components for one command invocation
type host struct {
	cfg       *config.Config
	log       *logger.Logger
	registry  *registry.Registry
	gate      *policy.Gate
	loop      *agentloop.Loop
	store     *policy.SQLiteStore
	refresher *registry.Refresher
	watcher   *config.Watcher
	metrics   *http.Server
}

// newHost loads configuration and wires the full component graph. Providers
// that fail to connect are logged and skipped; a single unreachable provider
// never prevents startup.
func newHost(ctx context.Context) (*host, error) {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zl := lg.GetZerolog()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := observability.InitAuditLogger(cfg.AuditLog); err != nil {
		return nil, fmt.Errorf("failed to initialize audit log: %w", err)
	}

	store, err := policy.NewSQLiteStore(cfg.Policy.ApprovalStore)
	if err != nil {
		return nil, fmt.Errorf("failed to open approval store: %w", err)
	}

	gate, err := policy.NewGate(policy.Config{
		Scopes:      scopesFromConfig(cfg),
		Sensitivity: sensitivityFromConfig(cfg),
		Approvals:   policy.NewApprovalManager(store),
		Logger:      zl,
	})
	if err != nil {
		return nil, err
	}

	reg := registry.New(registry.Config{Logger: zl})

	eng, err := engine.NewEngine(engine.Profile{
		Provider:  cfg.Engine.Provider,
		APIKey:    cfg.Engine.APIKey,
		Model:     cfg.Engine.Model,
		MaxTokens: cfg.Engine.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	retrying := engine.NewRetryingEngine(eng, cfg.Engine.MaxRetries,
		time.Duration(cfg.Engine.RetryBaseMS)*time.Millisecond)

	loop, err := agentloop.New(agentloop.Config{
		Registry:            reg,
		Gate:                gate,
		Engine:              retrying,
		Logger:              zl,
		MaxIterations:       cfg.Loop.MaxIterations,
		ApprovalTimeout:     time.Duration(cfg.Policy.ApprovalTimeoutMS) * time.Millisecond,
		SystemPrompt:        cfg.Loop.SystemPrompt,
		MaxSnapshotMessages: cfg.Loop.MaxSnapshotMessages,
	})
	if err != nil {
		return nil, err
	}

	h := &host{
		cfg:      cfg,
		log:      lg,
		registry: reg,
		gate:     gate,
		loop:     loop,
		store:    store,
	}

	h.openProviders(ctx, zl)

	if interval, err := time.ParseDuration(cfg.Loop.RefreshInterval); err == nil && interval > 0 {
		if refresher, err := registry.NewRefresher(reg, interval); err == nil {
			refresher.Start()
			h.refresher = refresher
		}
	}

	h.watcher = config.NewWatcher(loader, func(next *config.Config) {
		gate.UpdateRules(scopesFromConfig(next), sensitivityFromConfig(next))
	})
	if err := h.watcher.Start(); err != nil {
		zl.Warn().Err(err).Msg("Config watching disabled")
		h.watcher = nil
	}

	if cfg.Metrics.Enabled {
		h.metrics = &http.Server{Addr: cfg.Metrics.Addr, Handler: metrics.Default().Handler()}
		go func() {
			if err := h.metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				zl.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	return h, nil
}

// openProviders connects each configured provider. Failures are isolated:
// the host reports them and keeps the providers that did connect.
func (h *host) openProviders(ctx context.Context, zl zerolog.Logger) {
	for _, p := range h.cfg.Providers {
		_, err := h.registry.Open(ctx, registry.ProviderConfig{
			ID:             p.ID,
			Endpoint:       p.Endpoint,
			ConnectTimeout: p.ConnectTimeout(),
			InvokeTimeout:  p.InvokeTimeout(),
		})
		if err != nil {
			zl.Error().Err(err).Str("provider", p.ID).Msg("Failed to connect to provider")
			fmt.Fprintf(os.Stderr, "warning: provider %s unavailable: %v\n", p.ID, err)
			continue
		}
		zl.Info().Str("provider", p.ID).Msg("Provider connected")
	}
}

// Close tears down the host in reverse wiring order
func (h *host) Close() {
	if h.watcher != nil {
		h.watcher.Stop()
	}
	if h.refresher != nil {
		h.refresher.Stop()
	}
	if h.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = h.metrics.Shutdown(ctx)
		cancel()
	}
	if err := h.registry.CloseAll(); err != nil {
		zl := h.log.GetZerolog()
		zl.Warn().Err(err).Msg("Session teardown reported errors")
	}
	if h.store != nil {
		_ = h.store.Close()
	}
	_ = h.log.Close()
}

// loopApprovalTimeout exposes the configured approval deadline for direct calls
func (h *host) loopApprovalTimeout() time.Duration {
	if h.cfg.Policy.ApprovalTimeoutMS > 0 {
		return time.Duration(h.cfg.Policy.ApprovalTimeoutMS) * time.Millisecond
	}
	return 60 * time.Second
}

func scopesFromConfig(cfg *config.Config) map[string]*policy.ScopePolicy {
	scopes := make(map[string]*policy.ScopePolicy)
	for _, p := range cfg.Providers {
		if p.Scope != nil {
			scopes[p.ID] = &policy.ScopePolicy{Allow: p.Scope.Allow, Deny: p.Scope.Deny}
		}
	}
	return scopes
}

func sensitivityFromConfig(cfg *config.Config) []policy.SensitivityRule {
	rules := make([]policy.SensitivityRule, 0, len(cfg.Policy.Sensitivity))
	for _, s := range cfg.Policy.Sensitivity {
		rules = append(rules, policy.SensitivityRule{
			Category: s.Category,
			Tools:    s.Tools,
			Keywords: s.Keywords,
		})
	}
	return rules
}
