package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ramsred/agentic-platform-mcp/internal/metrics"
	"github.com/ramsred/agentic-platform-mcp/pkg/invocation"
)

// Decision is the human response to a require-approval verdict
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDeny    Decision = "deny"
	DecisionTimeout Decision = "timeout"
)

// PendingApproval is one suspended invocation awaiting a decision. It
// carries a resumption token independent of any in-memory call stack.
type PendingApproval struct {
	Token     string             `json:"token"`
	Request   invocation.Request `json:"request"`
	Category  string             `json:"category"`
	CreatedAt time.Time          `json:"created_at"`
}

type pendingEntry struct {
	approval PendingApproval
	ch       chan Decision
	once     sync.Once
}

// ApprovalManager tracks pending approvals and resolves each at most once.
// Pending and resolved approvals are mirrored to the store so a decision can
// arrive from an external process.
type ApprovalManager struct {
	store Store

	mu      sync.Mutex
	pending map[string]*pendingEntry
}

// NewApprovalManager creates an approval manager. The store may be nil for
// purely in-memory operation.
func NewApprovalManager(store Store) *ApprovalManager {
	return &ApprovalManager{
		store:   store,
		pending: make(map[string]*pendingEntry),
	}
}

// Create registers a pending approval and returns its resumption token
func (am *ApprovalManager) Create(ctx context.Context, req invocation.Request, category string) (string, error) {
	approval := PendingApproval{
		Token:     uuid.New().String(),
		Request:   req,
		Category:  category,
		CreatedAt: time.Now().UTC(),
	}

	if am.store != nil {
		if err := am.store.SavePending(ctx, approval); err != nil {
			return "", fmt.Errorf("failed to persist pending approval: %w", err)
		}
	}

	am.mu.Lock()
	am.pending[approval.Token] = &pendingEntry{
		approval: approval,
		ch:       make(chan Decision, 1),
	}
	am.mu.Unlock()

	metrics.Default().ApprovalsPending.Inc()

	log.Info().
		Str("token", approval.Token).
		Str("provider", req.ProviderID).
		Str("tool", req.Tool).
		Str("category", category).
		Msg("Approval requested")

	return approval.Token, nil
}

// Pending returns the pending approvals, for operator surfaces
func (am *ApprovalManager) Pending() []PendingApproval {
	am.mu.Lock()
	defer am.mu.Unlock()

	out := make([]PendingApproval, 0, len(am.pending))
	for _, e := range am.pending {
		out = append(out, e.approval)
	}
	return out
}

// Resolve records an external decision for a token. A token resolves at most
// once; later calls return an error.
func (am *ApprovalManager) Resolve(ctx context.Context, token string, decision Decision) error {
	if decision != DecisionApprove && decision != DecisionDeny {
		return fmt.Errorf("invalid decision %q", decision)
	}

	am.mu.Lock()
	entry, ok := am.pending[token]
	am.mu.Unlock()

	if !ok {
		return fmt.Errorf("no pending approval for token %s", token)
	}

	resolved := false
	entry.once.Do(func() {
		entry.ch <- decision
		resolved = true
	})
	if !resolved {
		return fmt.Errorf("approval %s already resolved", token)
	}

	if am.store != nil {
		if err := am.store.MarkResolved(ctx, token, string(decision)); err != nil {
			log.Error().Err(err).Str("token", token).Msg("Failed to persist approval resolution")
		}
	}

	return nil
}

// Await blocks until the token resolves or the deadline passes. No decision
// before the deadline resolves to timeout, which callers treat identically
// to an explicit deny.
func (am *ApprovalManager) Await(ctx context.Context, token string, deadline time.Duration) Decision {
	am.mu.Lock()
	entry, ok := am.pending[token]
	am.mu.Unlock()

	if !ok {
		return DecisionDeny
	}

	defer func() {
		am.mu.Lock()
		delete(am.pending, token)
		am.mu.Unlock()
		metrics.Default().ApprovalsPending.Dec()
	}()

	var decision Decision
	select {
	case decision = <-entry.ch:
	case <-time.After(deadline):
		decision = DecisionTimeout
		entry.once.Do(func() {}) // block any late Resolve
		if am.store != nil {
			if err := am.store.MarkResolved(ctx, token, string(DecisionTimeout)); err != nil {
				log.Error().Err(err).Str("token", token).Msg("Failed to persist approval timeout")
			}
		}
	case <-ctx.Done():
		decision = DecisionTimeout
		entry.once.Do(func() {})
	}

	metrics.Default().ApprovalsTotal.WithLabelValues(string(decision)).Inc()

	log.Info().
		Str("token", token).
		Str("decision", string(decision)).
		Msg("Approval resolved")

	return decision
}
