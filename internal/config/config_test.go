package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramsred/agentic-platform-mcp/pkg/transport"
)

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestValidate(t *testing.T) {
	valid := ProviderConfig{
		ID:       "web",
		Endpoint: transport.Endpoint{Kind: transport.KindWebSocket, URL: "ws://localhost:9000"},
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errStr string
	}{
		{
			name:   "provider without id",
			mutate: func(c *Config) { c.Providers = []ProviderConfig{{Endpoint: valid.Endpoint}} },
			errStr: "id is required",
		},
		{
			name:   "duplicate provider",
			mutate: func(c *Config) { c.Providers = []ProviderConfig{valid, valid} },
			errStr: "declared twice",
		},
		{
			name: "incomplete endpoint",
			mutate: func(c *Config) {
				c.Providers = []ProviderConfig{{ID: "files", Endpoint: transport.Endpoint{Kind: transport.KindStdio}}}
			},
			errStr: "requires a command",
		},
		{
			name:   "unknown engine",
			mutate: func(c *Config) { c.Engine.Provider = "crystal-ball" },
			errStr: "unsupported engine provider",
		},
		{
			name:   "zero iterations",
			mutate: func(c *Config) { c.Loop.MaxIterations = 0 },
			errStr: "max_iterations",
		},
		{
			name:   "sensitivity rule without matchers",
			mutate: func(c *Config) { c.Policy.Sensitivity = []SensitivityConfig{{Category: "pii"}} },
			errStr: "needs tools or keywords",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errStr)
		})
	}
}

func TestLoaderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcphost.json")

	content := `{
		"data_dir": "` + dir + `",
		"providers": [
			{
				"id": "web",
				"endpoint": {"kind": "websocket", "url": "ws://localhost:9000/mcp"},
				"invoke_timeout_ms": 5000,
				"scope": {"allow": ["search"], "deny": []}
			}
		],
		"engine": {"provider": "openai", "model": "gpt-4o", "max_tokens": 2048},
		"policy": {
			"approval_timeout_ms": 1500,
			"sensitivity": [{"category": "pii", "keywords": ["email"]}]
		},
		"loop": {"max_iterations": 4}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "web", cfg.Providers[0].ID)
	assert.Equal(t, transport.KindWebSocket, cfg.Providers[0].Endpoint.Kind)
	assert.Equal(t, []string{"search"}, cfg.Providers[0].Scope.Allow)
	assert.Equal(t, int64(5000), cfg.Providers[0].InvokeTimeout().Milliseconds())

	assert.Equal(t, "openai", cfg.Engine.Provider)
	assert.Equal(t, 4, cfg.Loop.MaxIterations)
	assert.Equal(t, 1500, cfg.Policy.ApprovalTimeoutMS)

	// Defaults survive partial files
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 3, cfg.Engine.MaxRetries)

	// Derived paths are filled in
	assert.Equal(t, filepath.Join(dir, "mcphost.log"), cfg.Logging.File)
	assert.Equal(t, filepath.Join(dir, "approvals.db"), cfg.Policy.ApprovalStore)
	assert.Equal(t, filepath.Join(dir, "audit.log"), cfg.AuditLog)
}

func TestLoaderRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcphost.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"engine": {"provider": "nope"}}`), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoaderMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Engine.Provider)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestLoaderAPIKeyFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcphost.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"data_dir": "`+dir+`"}`), 0644))

	t.Setenv("MCPHOST_API_KEY", "sk-from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.Engine.APIKey)
}
