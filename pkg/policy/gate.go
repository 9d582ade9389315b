// Package policy evaluates proposed tool invocations against scope rules,
// data-sensitivity rules, and human-approval requirements before any
// dispatch occurs.
package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ramsred/agentic-platform-mcp/internal/metrics"
	"github.com/ramsred/agentic-platform-mcp/internal/observability"
	"github.com/ramsred/agentic-platform-mcp/pkg/invocation"
	"github.com/ramsred/agentic-platform-mcp/pkg/protocol"
)

// VerdictKind is the outcome of a policy evaluation
type VerdictKind string

const (
	VerdictAllow           VerdictKind = "allow"
	VerdictDeny            VerdictKind = "deny"
	VerdictRequireApproval VerdictKind = "require-approval"
)

// Verdict is computed fresh per invocation request and never cached across
// requests with different arguments.
type Verdict struct {
	Kind          VerdictKind `json:"kind"`
	Reason        string      `json:"reason"`
	ApprovalToken string      `json:"approval_token,omitempty"`
}

// ScopePolicy defines the caller's access boundary for one provider. Deny
// overrides allow; an empty allow list denies everything.
type ScopePolicy struct {
	Allow []string `json:"allow"`
	Deny  []string `json:"deny"`
}

// IsToolAllowed checks a tool name against the policy
func (p *ScopePolicy) IsToolAllowed(toolName string) bool {
	if p == nil {
		// No policy means allow all
		return true
	}

	// Deny list overrides allow list
	for _, denied := range p.Deny {
		if denied == toolName || denied == "*" {
			return false
		}
	}

	for _, allowed := range p.Allow {
		if allowed == toolName || allowed == "*" {
			return true
		}
	}

	// No explicit allow means deny by default
	return false
}

// SensitivityRule flags a data category. An invocation matches when its tool
// name is listed or when a keyword appears in the tool's declared schema or
// description.
type SensitivityRule struct {
	Category string   `json:"category"`
	Tools    []string `json:"tools"`
	Keywords []string `json:"keywords"`
}

func (r SensitivityRule) matches(req invocation.Request, desc *protocol.CapabilityDescriptor) bool {
	for _, tool := range r.Tools {
		if tool == req.Tool || tool == "*" {
			return true
		}
	}
	if desc == nil {
		return false
	}
	haystack := strings.ToLower(desc.Description + " " + string(desc.InputSchema))
	for _, kw := range r.Keywords {
		if kw != "" && strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// EvalContext carries the caller identity and the discovered descriptor for
// the requested tool, when known.
type EvalContext struct {
	InteractionID string
	Descriptor    *protocol.CapabilityDescriptor
}

// Gate enforces scope and sensitivity rules. The gate is stateless with
// respect to prior verdicts: identical arguments submitted twice are
// evaluated independently. Rules may be swapped at runtime; evaluations in
// flight finish under the rules they started with.
type Gate struct {
	mu          sync.RWMutex
	scopes      map[string]*ScopePolicy
	sensitivity []SensitivityRule
	approvals   *ApprovalManager
	logger      zerolog.Logger
}

// Config holds gate configuration
type Config struct {
	// Scopes maps provider ID to its access boundary. A provider without an
	// entry has no boundary (allow all).
	Scopes      map[string]*ScopePolicy
	Sensitivity []SensitivityRule
	Approvals   *ApprovalManager
	Logger      zerolog.Logger
}

// NewGate creates a policy gate
func NewGate(cfg Config) (*Gate, error) {
	if cfg.Approvals == nil {
		return nil, fmt.Errorf("approval manager is required")
	}
	if cfg.Scopes == nil {
		cfg.Scopes = make(map[string]*ScopePolicy)
	}

	return &Gate{
		scopes:      cfg.Scopes,
		sensitivity: cfg.Sensitivity,
		approvals:   cfg.Approvals,
		logger:      cfg.Logger,
	}, nil
}

// Approvals exposes the approval manager for external resolvers
func (g *Gate) Approvals() *ApprovalManager {
	return g.approvals
}

// UpdateRules replaces the scope and sensitivity rules, for hot reload
func (g *Gate) UpdateRules(scopes map[string]*ScopePolicy, sensitivity []SensitivityRule) {
	if scopes == nil {
		scopes = make(map[string]*ScopePolicy)
	}

	g.mu.Lock()
	g.scopes = scopes
	g.sensitivity = sensitivity
	g.mu.Unlock()

	g.logger.Info().
		Int("scopes", len(scopes)).
		Int("sensitivity_rules", len(sensitivity)).
		Msg("Policy rules updated")
}

// Evaluate applies the rules in order, first match wins:
// scope deny, sensitivity require-approval, default allow.
func (g *Gate) Evaluate(ctx context.Context, req invocation.Request, ec EvalContext) Verdict {
	verdict := g.evaluate(ctx, req, ec)

	metrics.Default().PolicyVerdictsTotal.WithLabelValues(string(verdict.Kind)).Inc()
	observability.RecordVerdict(ctx, ec.InteractionID, req.ProviderID, req.Tool, string(verdict.Kind), verdict.Reason)

	if verdict.Kind != VerdictAllow {
		g.logger.Warn().
			Str("provider", req.ProviderID).
			Str("tool", req.Tool).
			Str("verdict", string(verdict.Kind)).
			Str("reason", verdict.Reason).
			Msg("Invocation gated")
	}

	return verdict
}

func (g *Gate) evaluate(ctx context.Context, req invocation.Request, ec EvalContext) Verdict {
	g.mu.RLock()
	scopes := g.scopes
	sensitivity := g.sensitivity
	g.mu.RUnlock()

	// (1) scope rule
	if scope, ok := scopes[req.ProviderID]; ok {
		if !scope.IsToolAllowed(req.Tool) {
			return Verdict{
				Kind:   VerdictDeny,
				Reason: fmt.Sprintf("tool %q is outside the configured access boundary for provider %q", req.Tool, req.ProviderID),
			}
		}
	}

	// (2) sensitivity rule
	for _, rule := range sensitivity {
		if rule.matches(req, ec.Descriptor) {
			token, err := g.approvals.Create(ctx, req, rule.Category)
			if err != nil {
				// Fail closed when the approval pipeline is unavailable
				return Verdict{
					Kind:   VerdictDeny,
					Reason: fmt.Sprintf("approval required for category %q but could not be requested: %v", rule.Category, err),
				}
			}
			return Verdict{
				Kind:          VerdictRequireApproval,
				Reason:        fmt.Sprintf("tool %q touches flagged data category %q", req.Tool, rule.Category),
				ApprovalToken: token,
			}
		}
	}

	// (3) default allow
	return Verdict{Kind: VerdictAllow, Reason: "no rule matched"}
}
