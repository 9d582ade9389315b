// Package engine adapts external reasoning engines behind one planning
// contract: ordered messages plus capability descriptors in, a final answer
// XOR a set of proposed tool calls out.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ramsred/agentic-platform-mcp/pkg/conversation"
	"github.com/ramsred/agentic-platform-mcp/pkg/protocol"
)

// toolNameSeparator joins provider and tool into the qualified name exposed
// to the engine, so calls route back to the right session.
const toolNameSeparator = "__"

// ProtocolError reports engine output that violates the planning contract.
// Fatal for the current planning step; no well-formed next step exists.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("engine protocol violation: %s", e.Reason)
}

// UnavailableError reports a transient engine failure, retryable with backoff
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("engine unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// ToolRequest is one proposed call from a planning step, already split back
// into provider and tool.
type ToolRequest struct {
	ProviderID string
	Tool       string
	Arguments  map[string]interface{}
}

// PlanningOutput is the parsed result of one engine call: exactly one of
// FinalAnswer or Requests is populated.
type PlanningOutput struct {
	FinalAnswer string
	Requests    []ToolRequest
	Usage       *TokenUsage
}

// TokenUsage tracks token consumption for one engine call
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Engine is a reasoning engine capable of tool-aware planning
type Engine interface {
	// Plan sends the conversation and capability schemas and parses the
	// engine's reply. Implementations return UnavailableError for transient
	// failures and ProtocolError for malformed output.
	Plan(ctx context.Context, messages []conversation.Message, caps map[string]protocol.CapabilitySet) (*PlanningOutput, error)

	// Name returns the engine identifier for logs and metrics
	Name() string
}

// QualifyToolName builds the engine-facing name for a provider tool
func QualifyToolName(providerID, tool string) string {
	return providerID + toolNameSeparator + tool
}

// SplitToolName resolves a qualified name back to provider and tool
func SplitToolName(qualified string) (providerID, tool string, err error) {
	idx := strings.Index(qualified, toolNameSeparator)
	if idx <= 0 || idx+len(toolNameSeparator) >= len(qualified) {
		return "", "", &ProtocolError{Reason: fmt.Sprintf("engine requested unroutable tool %q", qualified)}
	}
	return qualified[:idx], qualified[idx+len(toolNameSeparator):], nil
}

// toolSchema is the JSON-schema shape handed to engine SDKs
type toolSchema struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// buildToolSchemas flattens the capability sets of all ready sessions into
// qualified engine tool definitions.
func buildToolSchemas(caps map[string]protocol.CapabilitySet) []toolSchema {
	var out []toolSchema
	for providerID, set := range caps {
		for _, tool := range set.Tools {
			schema := map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			}
			if len(tool.InputSchema) > 0 {
				var decoded map[string]interface{}
				if err := json.Unmarshal(tool.InputSchema, &decoded); err == nil {
					schema = decoded
				}
			}
			out = append(out, toolSchema{
				Name:        QualifyToolName(providerID, tool.Name),
				Description: tool.Description,
				InputSchema: schema,
			})
		}
	}
	return out
}

// parseOutput enforces the XOR contract on raw engine output
func parseOutput(content string, calls []rawToolCall, usage *TokenUsage) (*PlanningOutput, error) {
	if len(calls) == 0 {
		if strings.TrimSpace(content) == "" {
			return nil, &ProtocolError{Reason: "planning produced neither a final answer nor tool requests"}
		}
		return &PlanningOutput{FinalAnswer: content, Usage: usage}, nil
	}

	requests := make([]ToolRequest, 0, len(calls))
	for _, call := range calls {
		providerID, tool, err := SplitToolName(call.Name)
		if err != nil {
			return nil, err
		}
		requests = append(requests, ToolRequest{
			ProviderID: providerID,
			Tool:       tool,
			Arguments:  call.Arguments,
		})
	}
	return &PlanningOutput{Requests: requests, Usage: usage}, nil
}

// rawToolCall is one tool call as decoded from an engine SDK response
type rawToolCall struct {
	Name      string
	Arguments map[string]interface{}
}
