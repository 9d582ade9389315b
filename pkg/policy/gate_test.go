package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramsred/agentic-platform-mcp/pkg/invocation"
	"github.com/ramsred/agentic-platform-mcp/pkg/protocol"
)

func newTestGate(t *testing.T, scopes map[string]*ScopePolicy, sensitivity []SensitivityRule) *Gate {
	t.Helper()
	gate, err := NewGate(Config{
		Scopes:      scopes,
		Sensitivity: sensitivity,
		Approvals:   NewApprovalManager(nil),
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	return gate
}

func TestIsToolAllowed(t *testing.T) {
	tests := []struct {
		name   string
		policy *ScopePolicy
		tool   string
		want   bool
	}{
		{name: "nil policy allows all", policy: nil, tool: "anything", want: true},
		{name: "explicit allow", policy: &ScopePolicy{Allow: []string{"search"}}, tool: "search", want: true},
		{name: "wildcard allow", policy: &ScopePolicy{Allow: []string{"*"}}, tool: "search", want: true},
		{name: "not in allow list", policy: &ScopePolicy{Allow: []string{"search"}}, tool: "delete", want: false},
		{name: "empty allow denies", policy: &ScopePolicy{}, tool: "search", want: false},
		{name: "deny overrides allow", policy: &ScopePolicy{Allow: []string{"*"}, Deny: []string{"delete"}}, tool: "delete", want: false},
		{name: "wildcard deny", policy: &ScopePolicy{Allow: []string{"search"}, Deny: []string{"*"}}, tool: "search", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.IsToolAllowed(tt.tool))
		})
	}
}

func TestEvaluateScopeDenyWinsOverSensitivity(t *testing.T) {
	// A request matching both a scope deny and a sensitivity rule must deny:
	// first matching rule decides.
	gate := newTestGate(t,
		map[string]*ScopePolicy{"files": {Allow: []string{"*"}, Deny: []string{"delete_file"}}},
		[]SensitivityRule{{Category: "destructive", Tools: []string{"delete_file"}}},
	)

	req := invocation.NewRequest("files", "delete_file", nil)
	verdict := gate.Evaluate(context.Background(), req, EvalContext{InteractionID: "i1"})

	assert.Equal(t, VerdictDeny, verdict.Kind)
	assert.Empty(t, verdict.ApprovalToken)
	assert.Empty(t, gate.Approvals().Pending())
}

func TestEvaluateSensitivityByToolName(t *testing.T) {
	gate := newTestGate(t, nil, []SensitivityRule{{Category: "pii", Tools: []string{"read_contacts"}}})

	req := invocation.NewRequest("crm", "read_contacts", nil)
	verdict := gate.Evaluate(context.Background(), req, EvalContext{InteractionID: "i1"})

	require.Equal(t, VerdictRequireApproval, verdict.Kind)
	assert.NotEmpty(t, verdict.ApprovalToken)
	assert.Len(t, gate.Approvals().Pending(), 1)
}

func TestEvaluateSensitivityByKeyword(t *testing.T) {
	gate := newTestGate(t, nil, []SensitivityRule{{Category: "pii", Keywords: []string{"email"}}})

	desc := &protocol.CapabilityDescriptor{
		Kind:        protocol.CapabilityTool,
		Name:        "lookup",
		Description: "Look up a customer's Email address",
		InputSchema: json.RawMessage(`{"type":"object"}`),
	}

	req := invocation.NewRequest("crm", "lookup", nil)
	verdict := gate.Evaluate(context.Background(), req, EvalContext{InteractionID: "i1", Descriptor: desc})

	assert.Equal(t, VerdictRequireApproval, verdict.Kind)
}

func TestEvaluateDefaultAllow(t *testing.T) {
	gate := newTestGate(t,
		map[string]*ScopePolicy{"files": {Allow: []string{"read_file"}}},
		[]SensitivityRule{{Category: "pii", Tools: []string{"read_contacts"}}},
	)

	req := invocation.NewRequest("files", "read_file", nil)
	verdict := gate.Evaluate(context.Background(), req, EvalContext{InteractionID: "i1"})

	assert.Equal(t, VerdictAllow, verdict.Kind)
}

func TestEvaluateIsStatelessAcrossInvocations(t *testing.T) {
	// Identical arguments under different invocation IDs get independent
	// verdicts and independent approval tokens.
	gate := newTestGate(t, nil, []SensitivityRule{{Category: "pii", Tools: []string{"export"}}})

	args := map[string]interface{}{"table": "users"}
	first := gate.Evaluate(context.Background(), invocation.NewRequest("db", "export", args), EvalContext{})
	second := gate.Evaluate(context.Background(), invocation.NewRequest("db", "export", args), EvalContext{})

	require.Equal(t, VerdictRequireApproval, first.Kind)
	require.Equal(t, VerdictRequireApproval, second.Kind)
	assert.NotEqual(t, first.ApprovalToken, second.ApprovalToken)
	assert.Len(t, gate.Approvals().Pending(), 2)
}

func TestEvaluateFailsClosedWhenApprovalPipelineBroken(t *testing.T) {
	gate, err := NewGate(Config{
		Sensitivity: []SensitivityRule{{Category: "pii", Tools: []string{"export"}}},
		Approvals:   NewApprovalManager(&failingStore{}),
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)

	verdict := gate.Evaluate(context.Background(), invocation.NewRequest("db", "export", nil), EvalContext{})

	assert.Equal(t, VerdictDeny, verdict.Kind)
	assert.Contains(t, verdict.Reason, "approval required")
}

func TestUpdateRulesTakesEffect(t *testing.T) {
	gate := newTestGate(t, nil, nil)
	req := invocation.NewRequest("files", "delete_file", nil)

	verdict := gate.Evaluate(context.Background(), req, EvalContext{})
	assert.Equal(t, VerdictAllow, verdict.Kind)

	gate.UpdateRules(map[string]*ScopePolicy{"files": {Deny: []string{"delete_file"}}}, nil)

	verdict = gate.Evaluate(context.Background(), invocation.NewRequest("files", "delete_file", nil), EvalContext{})
	assert.Equal(t, VerdictDeny, verdict.Kind)
}

// failingStore simulates an unreachable approval store
type failingStore struct{}

func (f *failingStore) SavePending(ctx context.Context, approval PendingApproval) error {
	return fmt.Errorf("store unavailable")
}

func (f *failingStore) MarkResolved(ctx context.Context, token, decision string) error {
	return fmt.Errorf("store unavailable")
}

func (f *failingStore) LoadPending(ctx context.Context) ([]PendingApproval, error) {
	return nil, fmt.Errorf("store unavailable")
}

func (f *failingStore) Close() error { return nil }
