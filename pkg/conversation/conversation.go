// Package conversation holds the ordered, append-only record of messages and
// tool results for one logical interaction.
package conversation

import (
	"sync"
	"time"
)

// Role identifies the author of a message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall records one proposed call inside an assistant message, so engines
// that require call/result pairing can reconstruct it.
type ToolCall struct {
	InvocationID string                 `json:"invocation_id"`
	Name         string                 `json:"name"` // engine-qualified tool name
	Arguments    map[string]interface{} `json:"arguments"`
}

// Message is one entry in the conversation log
type Message struct {
	Role         Role       `json:"role"`
	Content      string     `json:"content"`
	InvocationID string     `json:"invocation_id,omitempty"` // tool results
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`    // assistant messages
	Timestamp    time.Time  `json:"timestamp"`
}

// State is the append-only log for one interaction. It grows monotonically
// within the interaction and is discarded when the interaction ends. Nothing
// is ever removed from an active log; context-window truncation applies only
// to the snapshot handed to the reasoning engine.
type State struct {
	mu       sync.RWMutex
	messages []Message
	turns    int
}

// New creates an empty conversation state
func New() *State {
	return &State{}
}

// Append adds one message to the log
func (s *State) Append(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	if msg.Role == RoleUser {
		s.turns++
	}
}

// Snapshot returns the ordered messages. The returned slice is a copy; the
// underlying log cannot be mutated through it.
func (s *State) Snapshot() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in the log
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Turns returns the bounded turn counter (user messages seen)
func (s *State) Turns() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turns
}

// TruncatedSnapshot returns a snapshot bounded to at most maxMessages
// entries for the reasoning engine. The leading system message, if any, is
// always retained, followed by the most recent messages. The underlying log
// is never truncated.
func (s *State) TruncatedSnapshot(maxMessages int) []Message {
	snapshot := s.Snapshot()
	if maxMessages <= 0 || len(snapshot) <= maxMessages {
		return snapshot
	}

	var head []Message
	rest := snapshot
	if snapshot[0].Role == RoleSystem {
		head = snapshot[:1]
		rest = snapshot[1:]
	}

	keep := maxMessages - len(head)
	if keep < 1 {
		keep = 1
	}
	if len(rest) > keep {
		rest = rest[len(rest)-keep:]
	}

	out := make([]Message, 0, len(head)+len(rest))
	out = append(out, head...)
	out = append(out, rest...)
	return out
}
