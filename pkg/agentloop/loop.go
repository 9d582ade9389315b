// Package agentloop drives one interaction turn by turn: invoking the
// reasoning engine, routing proposed invocations through the policy gate and
// provider sessions, and deciding termination.
package agentloop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ramsred/agentic-platform-mcp/internal/metrics"
	"github.com/ramsred/agentic-platform-mcp/internal/tracing"
	"github.com/ramsred/agentic-platform-mcp/pkg/conversation"
	"github.com/ramsred/agentic-platform-mcp/pkg/engine"
	"github.com/ramsred/agentic-platform-mcp/pkg/invocation"
	"github.com/ramsred/agentic-platform-mcp/pkg/policy"
	"github.com/ramsred/agentic-platform-mcp/pkg/registry"
)

// TerminalState is how an interaction ends. Every interaction ends in
// exactly one of these; never an unbounded hang.
type TerminalState string

const (
	StateAnswer    TerminalState = "answer"
	StateFailed    TerminalState = "failed"
	StateCancelled TerminalState = "cancelled"
)

// Outcome is the terminal result of one interaction
type Outcome struct {
	InteractionID string              `json:"interaction_id"`
	State         TerminalState       `json:"state"`
	Answer        string              `json:"answer,omitempty"`
	Reason        string              `json:"reason,omitempty"`
	Iterations    int                 `json:"iterations"`
	Results       []invocation.Result `json:"results,omitempty"`
}

// Config holds loop configuration
type Config struct {
	Registry *registry.Registry
	Gate     *policy.Gate
	Engine   engine.Engine
	Logger   zerolog.Logger

	// MaxIterations bounds planning steps per interaction; default 8
	MaxIterations int
	// ApprovalTimeout bounds each require-approval suspension; default 60s
	ApprovalTimeout time.Duration
	// SystemPrompt seeds new conversations
	SystemPrompt string
	// MaxSnapshotMessages bounds the engine-facing snapshot; 0 = unbounded
	MaxSnapshotMessages int
}

// Loop executes interactions. Single-threaded per interaction: only one
// planning/dispatching/observing phase is active for a given conversation.
type Loop struct {
	registry            *registry.Registry
	gate                *policy.Gate
	engine              engine.Engine
	logger              zerolog.Logger
	maxIterations       int
	approvalTimeout     time.Duration
	systemPrompt        string
	maxSnapshotMessages int
}

// New creates a control loop
func New(cfg Config) (*Loop, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	if cfg.Gate == nil {
		return nil, fmt.Errorf("policy gate is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("reasoning engine is required")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 8
	}
	if cfg.ApprovalTimeout <= 0 {
		cfg.ApprovalTimeout = 60 * time.Second
	}

	return &Loop{
		registry:            cfg.Registry,
		gate:                cfg.Gate,
		engine:              cfg.Engine,
		logger:              cfg.Logger,
		maxIterations:       cfg.MaxIterations,
		approvalTimeout:     cfg.ApprovalTimeout,
		systemPrompt:        cfg.SystemPrompt,
		maxSnapshotMessages: cfg.MaxSnapshotMessages,
	}, nil
}

// Run drives one interaction from a user query to a terminal state
func (l *Loop) Run(ctx context.Context, conv *conversation.State, query string) Outcome {
	interactionID := tracing.NewInteractionID()
	ctx = tracing.WithInteractionID(ctx, interactionID)
	if tracing.GetTraceID(ctx) == "" {
		ctx = tracing.NewRequestContext(ctx)
	}

	logger := l.logger.With().Str("interaction_id", interactionID).Logger()

	if conv.Len() == 0 && l.systemPrompt != "" {
		conv.Append(conversation.Message{Role: conversation.RoleSystem, Content: l.systemPrompt})
	}
	conv.Append(conversation.Message{Role: conversation.RoleUser, Content: query})

	outcome := l.run(ctx, logger, interactionID, conv)
	outcome.InteractionID = interactionID

	metrics.Default().InteractionsTotal.WithLabelValues(string(outcome.State)).Inc()
	metrics.Default().PlanningIterations.Observe(float64(outcome.Iterations))

	logger.Info().
		Str("state", string(outcome.State)).
		Int("iterations", outcome.Iterations).
		Int("results", len(outcome.Results)).
		Msg("Interaction finished")

	return outcome
}

func (l *Loop) run(ctx context.Context, logger zerolog.Logger, interactionID string, conv *conversation.State) Outcome {
	var allResults []invocation.Result

	for iteration := 1; iteration <= l.maxIterations; iteration++ {
		// The engine call is a suspension point; honor cancellation first
		if err := ctx.Err(); err != nil {
			return Outcome{State: StateCancelled, Reason: "cancelled", Iterations: iteration - 1, Results: allResults}
		}

		caps := l.registry.ReadyCapabilities()
		snapshot := conv.TruncatedSnapshot(l.maxSnapshotMessages)

		logger.Debug().Int("iteration", iteration).Int("providers", len(caps)).Msg("Planning")

		output, err := l.engine.Plan(ctx, snapshot, caps)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				return Outcome{State: StateCancelled, Reason: "cancelled", Iterations: iteration, Results: allResults}
			}
			var protoErr *engine.ProtocolError
			if errors.As(err, &protoErr) {
				// No well-formed next step exists
				return Outcome{State: StateFailed, Reason: protoErr.Error(), Iterations: iteration, Results: allResults}
			}
			return Outcome{State: StateFailed, Reason: fmt.Sprintf("reasoning engine failed: %v", err), Iterations: iteration, Results: allResults}
		}

		if output.FinalAnswer != "" {
			conv.Append(conversation.Message{Role: conversation.RoleAssistant, Content: output.FinalAnswer})
			return Outcome{State: StateAnswer, Answer: output.FinalAnswer, Iterations: iteration, Results: allResults}
		}

		// Engine adapters enforce the answer-XOR-requests contract, but the
		// loop must stay correct with any Engine implementation.
		if len(output.Requests) == 0 {
			violation := &engine.ProtocolError{Reason: "planning produced neither a final answer nor tool requests"}
			return Outcome{State: StateFailed, Reason: violation.Error(), Iterations: iteration, Results: allResults}
		}

		requests, echo := l.buildRequests(output.Requests)
		conv.Append(echo)

		results := l.resolveAll(ctx, interactionID, requests)
		for _, result := range results {
			conv.Append(conversation.Message{
				Role:         conversation.RoleTool,
				Content:      result.Summary(),
				InvocationID: result.InvocationID,
			})
			allResults = append(allResults, result)
		}

		// Dispatch is a suspension point; a cancellation observed here ends
		// the interaction after all in-flight results were collected.
		if err := ctx.Err(); err != nil {
			return Outcome{State: StateCancelled, Reason: "cancelled", Iterations: iteration, Results: allResults}
		}
	}

	return Outcome{
		State:      StateFailed,
		Reason:     fmt.Sprintf("planning iteration budget exhausted after %d iterations", l.maxIterations),
		Iterations: l.maxIterations,
		Results:    allResults,
	}
}

// buildRequests materializes invocation requests from engine output and the
// assistant echo message pairing each call with its invocation identifier.
func (l *Loop) buildRequests(proposed []engine.ToolRequest) ([]invocation.Request, conversation.Message) {
	requests := make([]invocation.Request, 0, len(proposed))
	echoes := make([]conversation.ToolCall, 0, len(proposed))

	for _, p := range proposed {
		req := invocation.NewRequest(p.ProviderID, p.Tool, p.Arguments)
		requests = append(requests, req)
		echoes = append(echoes, conversation.ToolCall{
			InvocationID: req.InvocationID,
			Name:         engine.QualifyToolName(p.ProviderID, p.Tool),
			Arguments:    p.Arguments,
		})
	}

	return requests, conversation.Message{
		Role:      conversation.RoleAssistant,
		ToolCalls: echoes,
	}
}
