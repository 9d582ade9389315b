package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramsred/agentic-platform-mcp/pkg/conversation"
	"github.com/ramsred/agentic-platform-mcp/pkg/protocol"
)

// scriptedEngine returns canned outcomes in order
type scriptedEngine struct {
	outcomes []error
	calls    int
}

func (s *scriptedEngine) Name() string { return "scripted" }

func (s *scriptedEngine) Plan(ctx context.Context, messages []conversation.Message, caps map[string]protocol.CapabilitySet) (*PlanningOutput, error) {
	err := s.outcomes[s.calls]
	s.calls++
	if err != nil {
		return nil, err
	}
	return &PlanningOutput{FinalAnswer: "done"}, nil
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "unavailable", err: &UnavailableError{Err: errors.New("overloaded")}, want: true},
		{name: "wrapped unavailable", err: fmt.Errorf("plan: %w", &UnavailableError{Err: errors.New("x")}), want: true},
		{name: "connection reset", err: errors.New("read tcp: ECONNRESET"), want: true},
		{name: "rate limited", err: errors.New("429 Too Many Requests"), want: true},
		{name: "server error", err: errors.New("503 Service Unavailable"), want: true},
		{name: "auth failure", err: errors.New("401 Unauthorized"), want: false},
		{name: "protocol violation", err: &ProtocolError{Reason: "empty"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}

func TestRetryingEngineRecoversFromTransientFailure(t *testing.T) {
	inner := &scriptedEngine{outcomes: []error{
		&UnavailableError{Err: errors.New("overloaded")},
		nil,
	}}
	re := NewRetryingEngine(inner, 3, time.Millisecond)

	out, err := re.Plan(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", out.FinalAnswer)
	assert.Equal(t, 2, inner.calls)
}

func TestRetryingEngineDoesNotRetryProtocolErrors(t *testing.T) {
	inner := &scriptedEngine{outcomes: []error{
		&ProtocolError{Reason: "planning produced neither a final answer nor tool requests"},
	}}
	re := NewRetryingEngine(inner, 3, time.Millisecond)

	_, err := re.Plan(context.Background(), nil, nil)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, 1, inner.calls)
}

func TestRetryingEngineGivesUpAfterMaxAttempts(t *testing.T) {
	inner := &scriptedEngine{outcomes: []error{
		&UnavailableError{Err: errors.New("down")},
		&UnavailableError{Err: errors.New("down")},
		&UnavailableError{Err: errors.New("down")},
	}}
	re := NewRetryingEngine(inner, 3, time.Millisecond)

	_, err := re.Plan(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingEngineHonorsCancellation(t *testing.T) {
	inner := &scriptedEngine{outcomes: []error{
		&UnavailableError{Err: errors.New("down")},
		nil,
	}}
	re := NewRetryingEngine(inner, 3, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := re.Plan(ctx, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.calls)
}

func TestNewEngineRejectsUnknownProvider(t *testing.T) {
	_, err := NewEngine(Profile{Provider: "cohere"})
	assert.Error(t, err)
}
