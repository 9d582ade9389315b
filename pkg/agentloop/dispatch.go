package agentloop

import (
	"context"
	"errors"
	"sync"

	"github.com/ramsred/agentic-platform-mcp/internal/observability"
	"github.com/ramsred/agentic-platform-mcp/internal/tracing"
	"github.com/ramsred/agentic-platform-mcp/pkg/invocation"
	"github.com/ramsred/agentic-platform-mcp/pkg/policy"
	"github.com/ramsred/agentic-platform-mcp/pkg/registry"
)

// resolveAll gates and dispatches a batch of invocation requests. Requests
// run concurrently against their sessions; results are returned in completion
// order, not request order. The call returns only after every request has
// produced exactly one result.
func (l *Loop) resolveAll(ctx context.Context, interactionID string, requests []invocation.Request) []invocation.Result {
	resultCh := make(chan invocation.Result, len(requests))

	var wg sync.WaitGroup
	for _, req := range requests {
		wg.Add(1)
		go func(req invocation.Request) {
			defer wg.Done()
			resultCh <- l.resolve(ctx, interactionID, req)
		}(req)
	}
	wg.Wait()
	close(resultCh)

	results := make([]invocation.Result, 0, len(requests))
	for result := range resultCh {
		results = append(results, result)
	}
	return results
}

// resolve carries one request through the policy gate and, when allowed, its
// provider session. Every path produces a result; a denial never reaches a
// session.
func (l *Loop) resolve(ctx context.Context, interactionID string, req invocation.Request) invocation.Result {
	ctx = tracing.WithInvocationID(tracing.WithProviderID(ctx, req.ProviderID), req.InvocationID)

	session, err := l.registry.Get(req.ProviderID)
	if err != nil {
		if errors.Is(err, registry.ErrUnknownProvider) {
			// The engine named a provider that was never opened; feed the
			// mistake back instead of failing the interaction.
			return invocation.ProviderErrorResult(req, -32601, "unknown tool provider: "+req.ProviderID)
		}
		return invocation.TransportErrorResult(req, err.Error())
	}

	caps := session.Capabilities()
	ec := policy.EvalContext{InteractionID: interactionID}
	if desc, ok := caps.Tool(req.Tool); ok {
		ec.Descriptor = &desc
	}

	verdict := l.gate.Evaluate(ctx, req, ec)

	switch verdict.Kind {
	case policy.VerdictDeny:
		return invocation.PolicyDeniedResult(req, verdict.Reason)

	case policy.VerdictRequireApproval:
		l.logger.Info().
			Str("provider", req.ProviderID).
			Str("tool", req.Tool).
			Str("token", verdict.ApprovalToken).
			Msg("Invocation suspended pending approval")

		decision := l.gate.Approvals().Await(ctx, verdict.ApprovalToken, l.approvalTimeout)
		switch decision {
		case policy.DecisionApprove:
			// fall through to dispatch
		case policy.DecisionTimeout:
			return invocation.PolicyDeniedResult(req, "timeout")
		default:
			return invocation.PolicyDeniedResult(req, "denied by approver")
		}
	}

	result := session.Invoke(ctx, req)

	observability.RecordInvocation(ctx, interactionID, req.ProviderID, req.Tool, req.InvocationID, string(result.Kind))

	return result
}
