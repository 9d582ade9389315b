package observability

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ramsred/agentic-platform-mcp/internal/tracing"
)

// AuditEvent represents a structured event for the audit log
type AuditEvent struct {
	Type      string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	Actor     string                 `json:"actor,omitempty"` // interaction ID or "operator"
	Action    string                 `json:"action"`          // e.g. "invocation_dispatched", "verdict_issued"
	Status    string                 `json:"status"`          // "success", "failure", "pending"
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
}

// AuditLogger handles recording and persisting audit events
type AuditLogger struct {
	logger zerolog.Logger
	mu     sync.Mutex
	file   *os.File
}

var (
	auditOnce sync.Once
	auditInst *AuditLogger
)

// GetAuditLogger returns the global audit logger instance
func GetAuditLogger() *AuditLogger {
	auditOnce.Do(func() {
		// Default to stderr if not initialized
		auditInst = &AuditLogger{
			logger: zerolog.New(os.Stderr).With().Timestamp().Logger(),
		}
	})
	return auditInst
}

// InitAuditLogger initializes the global audit logger with a specific file
func InitAuditLogger(path string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	auditInst = &AuditLogger{
		logger: zerolog.New(file).With().Timestamp().Logger(),
		file:   file,
	}
	return nil
}

// Record writes an audit event to the log
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.TraceID == "" {
		event.TraceID = tracing.GetTraceID(ctx)
	}

	ev := a.logger.Info().
		Str("event_type", event.Type).
		Str("action", event.Action).
		Str("status", event.Status).
		Time("timestamp", event.Timestamp)
	if event.Actor != "" {
		ev = ev.Str("actor", event.Actor)
	}
	if event.TraceID != "" {
		ev = ev.Str("trace_id", event.TraceID)
	}
	if len(event.Metadata) > 0 {
		ev = ev.Interface("metadata", event.Metadata)
	}
	ev.Msg("audit")
}

// RecordVerdict records a policy verdict for an invocation
func RecordVerdict(ctx context.Context, interactionID, provider, tool, verdict, reason string) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:   "policy",
		Actor:  interactionID,
		Action: "verdict_issued",
		Status: verdict,
		Metadata: map[string]interface{}{
			"provider": provider,
			"tool":     tool,
			"reason":   reason,
		},
	})
}

// RecordInvocation records a dispatched tool invocation and its outcome
func RecordInvocation(ctx context.Context, interactionID, provider, tool, invocationID, status string) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:   "invocation",
		Actor:  interactionID,
		Action: "invocation_dispatched",
		Status: status,
		Metadata: map[string]interface{}{
			"provider":      provider,
			"tool":          tool,
			"invocation_id": invocationID,
		},
	})
}

// Close releases the audit log file if one is open
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		return a.file.Close()
	}
	return nil
}
