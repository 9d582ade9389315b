// Package invocation defines the request/result pair that travels from the
// control loop through the policy gate to a protocol session and back.
package invocation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Request correlates a proposed tool call to a provider session. Never
// mutated after creation; a denied or failed request is replaced, not edited.
type Request struct {
	InvocationID string                 `json:"invocation_id"`
	ProviderID   string                 `json:"provider_id"`
	Tool         string                 `json:"tool"`
	Arguments    map[string]interface{} `json:"arguments"`
	CreatedAt    time.Time              `json:"created_at"`
}

// NewRequest builds a request with a fresh invocation identifier
func NewRequest(providerID, tool string, args map[string]interface{}) Request {
	return Request{
		InvocationID: uuid.New().String(),
		ProviderID:   providerID,
		Tool:         tool,
		Arguments:    args,
		CreatedAt:    time.Now().UTC(),
	}
}

// ResultKind classifies the outcome of a dispatched invocation
type ResultKind string

const (
	ResultSuccess       ResultKind = "success"
	ResultProviderError ResultKind = "provider-error"
	ResultTransportErr  ResultKind = "transport-error"
	ResultPolicyDenied  ResultKind = "policy-denied"
)

// Result is the outcome of one invocation. Appended exactly once to the
// conversation state per invocation identifier; immutable thereafter.
type Result struct {
	InvocationID string          `json:"invocation_id"`
	ProviderID   string          `json:"provider_id"`
	Tool         string          `json:"tool"`
	Kind         ResultKind      `json:"kind"`
	Payload      json.RawMessage `json:"payload,omitempty"`       // success
	ErrorCode    int             `json:"error_code,omitempty"`    // provider-error
	ErrorMessage string          `json:"error_message,omitempty"` // provider-error
	Reason       string          `json:"reason,omitempty"`        // transport-error, policy-denied
	CompletedAt  time.Time       `json:"completed_at"`
}

// Succeeded reports whether the invocation completed with a payload
func (r Result) Succeeded() bool {
	return r.Kind == ResultSuccess
}

// SuccessResult builds a success result for a request
func SuccessResult(req Request, payload json.RawMessage) Result {
	return Result{
		InvocationID: req.InvocationID,
		ProviderID:   req.ProviderID,
		Tool:         req.Tool,
		Kind:         ResultSuccess,
		Payload:      payload,
		CompletedAt:  time.Now().UTC(),
	}
}

// ProviderErrorResult builds a provider-error result for a request
func ProviderErrorResult(req Request, code int, message string) Result {
	return Result{
		InvocationID: req.InvocationID,
		ProviderID:   req.ProviderID,
		Tool:         req.Tool,
		Kind:         ResultProviderError,
		ErrorCode:    code,
		ErrorMessage: message,
		CompletedAt:  time.Now().UTC(),
	}
}

// TransportErrorResult builds a transport-error result for a request
func TransportErrorResult(req Request, reason string) Result {
	return Result{
		InvocationID: req.InvocationID,
		ProviderID:   req.ProviderID,
		Tool:         req.Tool,
		Kind:         ResultTransportErr,
		Reason:       reason,
		CompletedAt:  time.Now().UTC(),
	}
}

// PolicyDeniedResult builds a policy-denied result for a request
func PolicyDeniedResult(req Request, reason string) Result {
	return Result{
		InvocationID: req.InvocationID,
		ProviderID:   req.ProviderID,
		Tool:         req.Tool,
		Kind:         ResultPolicyDenied,
		Reason:       reason,
		CompletedAt:  time.Now().UTC(),
	}
}

// Summary renders the result as a compact payload for the reasoning engine.
// Failures are surfaced as ordinary tool results so the engine can adapt.
func (r Result) Summary() string {
	switch r.Kind {
	case ResultSuccess:
		return string(r.Payload)
	case ResultProviderError:
		b, _ := json.Marshal(map[string]interface{}{
			"error":   "provider-error",
			"code":    r.ErrorCode,
			"message": r.ErrorMessage,
		})
		return string(b)
	default:
		b, _ := json.Marshal(map[string]interface{}{
			"error":  string(r.Kind),
			"reason": r.Reason,
		})
		return string(b)
	}
}
