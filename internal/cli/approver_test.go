package cli

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramsred/agentic-platform-mcp/pkg/invocation"
	"github.com/ramsred/agentic-platform-mcp/pkg/policy"
)

func TestConsoleApproverStopsWhilePromptUnanswered(t *testing.T) {
	am := policy.NewApprovalManager(nil)
	_, err := am.Create(context.Background(), invocation.NewRequest("web", "search", nil), "external")
	require.NoError(t, err)

	a := newConsoleApprover(am)

	// Operator input that never produces a line
	pr, pw := io.Pipe()
	defer pw.Close()
	a.input = pr

	a.Start()

	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return len(a.asked) == 1
	}, 2*time.Second, 10*time.Millisecond, "prompt never went up")

	stopped := make(chan struct{})
	go func() {
		a.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop hung on an unanswered prompt")
	}
}

func TestConsoleApproverResolvesFromInput(t *testing.T) {
	am := policy.NewApprovalManager(nil)
	token, err := am.Create(context.Background(), invocation.NewRequest("web", "search", nil), "external")
	require.NoError(t, err)

	a := newConsoleApprover(am)
	a.input = strings.NewReader("y\n")
	a.Start()
	defer a.Stop()

	decision := am.Await(context.Background(), token, 2*time.Second)
	assert.Equal(t, policy.DecisionApprove, decision)
}
