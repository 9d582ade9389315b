package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramsred/agentic-platform-mcp/pkg/invocation"
)

func TestAwaitReturnsResolvedDecision(t *testing.T) {
	am := NewApprovalManager(nil)
	req := invocation.NewRequest("crm", "read_contacts", nil)

	token, err := am.Create(context.Background(), req, "pii")
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = am.Resolve(context.Background(), token, DecisionApprove)
	}()

	decision := am.Await(context.Background(), token, time.Second)
	assert.Equal(t, DecisionApprove, decision)
	assert.Empty(t, am.Pending())
}

func TestResolveAtMostOnce(t *testing.T) {
	am := NewApprovalManager(nil)
	token, err := am.Create(context.Background(), invocation.NewRequest("crm", "export", nil), "pii")
	require.NoError(t, err)

	require.NoError(t, am.Resolve(context.Background(), token, DecisionApprove))

	err = am.Resolve(context.Background(), token, DecisionDeny)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already resolved")

	// The first decision wins
	decision := am.Await(context.Background(), token, time.Second)
	assert.Equal(t, DecisionApprove, decision)
}

func TestAwaitTimesOutAndBlocksLateResolve(t *testing.T) {
	am := NewApprovalManager(nil)
	token, err := am.Create(context.Background(), invocation.NewRequest("crm", "export", nil), "pii")
	require.NoError(t, err)

	decision := am.Await(context.Background(), token, 20*time.Millisecond)
	assert.Equal(t, DecisionTimeout, decision)

	// A decision after the deadline must not land anywhere
	err = am.Resolve(context.Background(), token, DecisionApprove)
	assert.Error(t, err)
}

func TestAwaitHonorsContextCancellation(t *testing.T) {
	am := NewApprovalManager(nil)
	token, err := am.Create(context.Background(), invocation.NewRequest("crm", "export", nil), "pii")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	decision := am.Await(ctx, token, time.Minute)
	assert.Equal(t, DecisionTimeout, decision)
}

func TestAwaitUnknownTokenDenies(t *testing.T) {
	am := NewApprovalManager(nil)
	decision := am.Await(context.Background(), "no-such-token", time.Second)
	assert.Equal(t, DecisionDeny, decision)
}

func TestResolveRejectsInvalidDecision(t *testing.T) {
	am := NewApprovalManager(nil)
	err := am.Resolve(context.Background(), "whatever", Decision("maybe"))
	assert.Error(t, err)
}
