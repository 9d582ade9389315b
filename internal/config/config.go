// Package config defines the host configuration and its loading rules.
package config

import (
	"fmt"
	"time"

	"github.com/ramsred/agentic-platform-mcp/pkg/transport"
)

// Config represents the main host configuration
type Config struct {
	// Providers
	Providers []ProviderConfig `json:"providers" mapstructure:"providers"`

	// Engine
	Engine EngineConfig `json:"engine" mapstructure:"engine"`

	// Policy
	Policy PolicyConfig `json:"policy" mapstructure:"policy"`

	// Loop
	Loop LoopConfig `json:"loop" mapstructure:"loop"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Audit log path
	AuditLog string `json:"audit_log" mapstructure:"audit_log"`
}

// ProviderConfig describes one tool provider to connect to at startup
type ProviderConfig struct {
	ID               string             `json:"id" mapstructure:"id"`
	Endpoint         transport.Endpoint `json:"endpoint" mapstructure:"endpoint"`
	ConnectTimeoutMS int                `json:"connect_timeout_ms" mapstructure:"connect_timeout_ms"`
	InvokeTimeoutMS  int                `json:"invoke_timeout_ms" mapstructure:"invoke_timeout_ms"`
	Scope            *ScopeConfig       `json:"scope,omitempty" mapstructure:"scope"`
}

// ConnectTimeout returns the connect timeout as a duration
func (p ProviderConfig) ConnectTimeout() time.Duration {
	return time.Duration(p.ConnectTimeoutMS) * time.Millisecond
}

// InvokeTimeout returns the invoke timeout as a duration
func (p ProviderConfig) InvokeTimeout() time.Duration {
	return time.Duration(p.InvokeTimeoutMS) * time.Millisecond
}

// ScopeConfig defines tool access boundaries for a provider
type ScopeConfig struct {
	Allow []string `json:"allow" mapstructure:"allow"`
	Deny  []string `json:"deny" mapstructure:"deny"`
}

// EngineConfig holds reasoning engine configuration
type EngineConfig struct {
	Provider    string `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey      string `json:"api_key" mapstructure:"api_key"`
	Model       string `json:"model" mapstructure:"model"`
	MaxTokens   int    `json:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries  int    `json:"max_retries" mapstructure:"max_retries"`
	RetryBaseMS int    `json:"retry_base_ms" mapstructure:"retry_base_ms"`
}

// PolicyConfig holds policy gate configuration
type PolicyConfig struct {
	Sensitivity       []SensitivityConfig `json:"sensitivity" mapstructure:"sensitivity"`
	ApprovalTimeoutMS int                 `json:"approval_timeout_ms" mapstructure:"approval_timeout_ms"`
	ApprovalStore     string              `json:"approval_store" mapstructure:"approval_store"` // sqlite path
}

// SensitivityConfig flags a data category as approval-gated
type SensitivityConfig struct {
	Category string   `json:"category" mapstructure:"category"`
	Tools    []string `json:"tools" mapstructure:"tools"`
	Keywords []string `json:"keywords" mapstructure:"keywords"`
}

// LoopConfig holds control loop configuration
type LoopConfig struct {
	MaxIterations       int    `json:"max_iterations" mapstructure:"max_iterations"`
	MaxSnapshotMessages int    `json:"max_snapshot_messages" mapstructure:"max_snapshot_messages"`
	SystemPrompt        string `json:"system_prompt" mapstructure:"system_prompt"`
	RefreshInterval     string `json:"refresh_interval" mapstructure:"refresh_interval"` // e.g. "5m"
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds the metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// DefaultConfig returns the configuration defaults
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Provider:    "anthropic",
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   4096,
			MaxRetries:  3,
			RetryBaseMS: 1000,
		},
		Policy: PolicyConfig{
			ApprovalTimeoutMS: 60000,
		},
		Loop: LoopConfig{
			MaxIterations:       8,
			MaxSnapshotMessages: 100,
			RefreshInterval:     "5m",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9464",
		},
	}
}

// Validate checks the configuration for structural errors
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("provider %d: id is required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("provider %q declared twice", p.ID)
		}
		seen[p.ID] = true
		if err := p.Endpoint.Validate(); err != nil {
			return fmt.Errorf("provider %q: %w", p.ID, err)
		}
	}

	switch c.Engine.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unsupported engine provider %q", c.Engine.Provider)
	}

	if c.Loop.MaxIterations < 1 {
		return fmt.Errorf("loop.max_iterations must be at least 1")
	}

	for i, s := range c.Policy.Sensitivity {
		if s.Category == "" {
			return fmt.Errorf("sensitivity rule %d: category is required", i)
		}
		if len(s.Tools) == 0 && len(s.Keywords) == 0 {
			return fmt.Errorf("sensitivity rule %q: needs tools or keywords", s.Category)
		}
	}

	return nil
}
