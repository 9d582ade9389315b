package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// InteractionIDKey is the context key for the interaction ID
	InteractionIDKey ContextKey = "interaction_id"
	// ProviderIDKey is the context key for the provider ID
	ProviderIDKey ContextKey = "provider_id"
	// InvocationIDKey is the context key for the invocation ID
	InvocationIDKey ContextKey = "invocation_id"
)

// TraceContext holds tracing information for one request path
type TraceContext struct {
	TraceID       string
	InteractionID string
	ProviderID    string
	InvocationID  string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewInteractionID generates a new interaction ID
func NewInteractionID() string {
	return uuid.New().String()
}

// NewRequestContext returns a context carrying a fresh trace ID
func NewRequestContext(ctx context.Context) context.Context {
	return WithTraceID(ctx, NewTraceID())
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithInteractionID adds an interaction ID to the context
func WithInteractionID(ctx context.Context, interactionID string) context.Context {
	return context.WithValue(ctx, InteractionIDKey, interactionID)
}

// WithProviderID adds a provider ID to the context
func WithProviderID(ctx context.Context, providerID string) context.Context {
	return context.WithValue(ctx, ProviderIDKey, providerID)
}

// WithInvocationID adds an invocation ID to the context
func WithInvocationID(ctx context.Context, invocationID string) context.Context {
	return context.WithValue(ctx, InvocationIDKey, invocationID)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetInteractionID retrieves the interaction ID from the context
func GetInteractionID(ctx context.Context) string {
	if interactionID, ok := ctx.Value(InteractionIDKey).(string); ok {
		return interactionID
	}
	return ""
}

// GetProviderID retrieves the provider ID from the context
func GetProviderID(ctx context.Context) string {
	if providerID, ok := ctx.Value(ProviderIDKey).(string); ok {
		return providerID
	}
	return ""
}

// GetInvocationID retrieves the invocation ID from the context
func GetInvocationID(ctx context.Context) string {
	if invocationID, ok := ctx.Value(InvocationIDKey).(string); ok {
		return invocationID
	}
	return ""
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:       GetTraceID(ctx),
		InteractionID: GetInteractionID(ctx),
		ProviderID:    GetProviderID(ctx),
		InvocationID:  GetInvocationID(ctx),
	}
}

// LoggerFields returns the non-empty trace fields as a map for log enrichment
func (tc *TraceContext) LoggerFields() map[string]string {
	fields := make(map[string]string, 4)
	if tc.TraceID != "" {
		fields["trace_id"] = tc.TraceID
	}
	if tc.InteractionID != "" {
		fields["interaction_id"] = tc.InteractionID
	}
	if tc.ProviderID != "" {
		fields["provider_id"] = tc.ProviderID
	}
	if tc.InvocationID != "" {
		fields["invocation_id"] = tc.InvocationID
	}
	return fields
}
