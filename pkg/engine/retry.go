package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ramsred/agentic-platform-mcp/internal/metrics"
	"github.com/ramsred/agentic-platform-mcp/pkg/conversation"
	"github.com/ramsred/agentic-platform-mcp/pkg/protocol"
)

// IsRetryableError classifies transient engine failures
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var unavailable *UnavailableError
	if errors.As(err, &unavailable) {
		return true
	}

	msg := err.Error()

	// Network errors
	if strings.Contains(msg, "ECONNRESET") || strings.Contains(msg, "ETIMEDOUT") ||
		strings.Contains(msg, "connection refused") {
		return true
	}

	// Rate limits
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") {
		return true
	}

	// Server errors
	if strings.Contains(msg, "500") || strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "504") {
		return true
	}

	return false
}

// RetryingEngine wraps an engine with bounded exponential-backoff retries
// for transient failures. Protocol errors are never retried.
type RetryingEngine struct {
	inner       Engine
	maxAttempts int
	baseDelay   time.Duration
}

// NewRetryingEngine wraps an engine; defaults: 3 attempts, 1s base delay
func NewRetryingEngine(inner Engine, maxAttempts int, baseDelay time.Duration) *RetryingEngine {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &RetryingEngine{inner: inner, maxAttempts: maxAttempts, baseDelay: baseDelay}
}

// Name returns the wrapped engine's identifier
func (e *RetryingEngine) Name() string {
	return e.inner.Name()
}

// Plan implements Engine with retry
func (e *RetryingEngine) Plan(ctx context.Context, messages []conversation.Message, caps map[string]protocol.CapabilitySet) (*PlanningOutput, error) {
	m := metrics.Default()
	var lastErr error

	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		start := time.Now()
		out, err := e.inner.Plan(ctx, messages, caps)
		m.EngineCallDuration.WithLabelValues(e.Name()).Observe(time.Since(start).Seconds())

		if err == nil {
			m.EngineCallsTotal.WithLabelValues(e.Name(), "success").Inc()
			return out, nil
		}

		lastErr = err
		m.EngineCallsTotal.WithLabelValues(e.Name(), "failure").Inc()

		if !IsRetryableError(err) {
			return nil, err
		}

		if attempt == e.maxAttempts-1 {
			break
		}

		// Exponential backoff: 1s, 2s, 4s
		delay := e.baseDelay * (1 << attempt)
		m.EngineRetriesTotal.Inc()
		log.Info().
			Str("engine", e.Name()).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Retrying engine call after transient error")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("engine unavailable after %d attempts: %w", e.maxAttempts, lastErr)
}

// Profile holds credentials and model selection for one engine backend
type Profile struct {
	Provider  string `json:"provider" mapstructure:"provider"` // "anthropic" or "openai"
	APIKey    string `json:"api_key" mapstructure:"api_key"`
	Model     string `json:"model" mapstructure:"model"`
	MaxTokens int    `json:"max_tokens" mapstructure:"max_tokens"`
}

// NewEngine creates an engine from a profile
func NewEngine(profile Profile) (Engine, error) {
	switch profile.Provider {
	case "anthropic":
		return NewAnthropicEngine(profile.APIKey, profile.Model, profile.MaxTokens), nil
	case "openai":
		return NewOpenAIEngine(profile.APIKey, profile.Model, profile.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unsupported engine provider: %s", profile.Provider)
	}
}
