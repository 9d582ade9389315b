// Package mcpclient implements the client side of the session-oriented RPC
// protocol against one provider: handshake, capability discovery, correlated
// request/response, and asynchronous notification delivery.
package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ramsred/agentic-platform-mcp/internal/metrics"
	"github.com/ramsred/agentic-platform-mcp/pkg/invocation"
	"github.com/ramsred/agentic-platform-mcp/pkg/protocol"
	"github.com/ramsred/agentic-platform-mcp/pkg/transport"
)

// State is the session lifecycle state
type State string

const (
	StateUninitialized State = "uninitialized"
	StateHandshaking   State = "handshaking"
	StateDiscovery     State = "capability-discovery"
	StateReady         State = "ready"
	StateDegraded      State = "degraded"
	StateClosed        State = "closed"
)

// HandshakeError reports a failed or incompatible initialize exchange
type HandshakeError struct {
	ProviderID string
	Reason     string
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake with %s failed: %s", e.ProviderID, e.Reason)
}

// NotificationObserver receives out-of-band notifications for a session.
// Called from the session's dispatch goroutine; must not block.
type NotificationObserver func(providerID string, note protocol.Notification)

// Config holds session configuration
type Config struct {
	ProviderID    string
	InvokeTimeout time.Duration
	Observer      NotificationObserver
	// OnDegraded fires once per transport loss, after pending calls have
	// been failed. The registry uses it to schedule reconnects.
	OnDegraded func(providerID string)
	Logger     zerolog.Logger
}

// Session is one stateful connection to a provider. Owned by the session
// registry; its capability set is only read outside this package.
type Session struct {
	providerID    string
	invokeTimeout time.Duration
	observer      NotificationObserver
	onDegraded    func(providerID string)
	logger        zerolog.Logger

	mu         sync.Mutex
	state      State
	transport  transport.Transport
	pending    map[string]chan *protocol.Response
	caps       protocol.CapabilitySet
	generation int64
	serverInfo protocol.ClientInfo
	// readyCh is replaced on every transition away from ready and closed on
	// the transition back; waiters queue behind it.
	readyCh chan struct{}
	closed  bool
}

// NewSession creates a session in the uninitialized state
func NewSession(cfg Config) (*Session, error) {
	if cfg.ProviderID == "" {
		return nil, fmt.Errorf("provider id is required")
	}
	if cfg.InvokeTimeout <= 0 {
		cfg.InvokeTimeout = 30 * time.Second
	}

	return &Session{
		providerID:    cfg.ProviderID,
		invokeTimeout: cfg.InvokeTimeout,
		observer:      cfg.Observer,
		onDegraded:    cfg.OnDegraded,
		logger:        cfg.Logger.With().Str("provider", cfg.ProviderID).Logger(),
		state:         StateUninitialized,
		pending:       make(map[string]chan *protocol.Response),
		readyCh:       make(chan struct{}),
	}, nil
}

// ProviderID returns the provider identifier
func (s *Session) ProviderID() string {
	return s.providerID
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Capabilities returns the cached capability set for the current generation
func (s *Session) Capabilities() protocol.CapabilitySet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps
}

// ServerInfo returns the provider identity from the last handshake
func (s *Session) ServerInfo() protocol.ClientInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverInfo
}

// Attach binds a freshly dialed transport and drives the session through
// handshake and capability discovery. Called for the initial connect and for
// every reconnect; each call starts a new session generation.
func (s *Session) Attach(ctx context.Context, t transport.Transport) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session %s is closed", s.providerID)
	}
	s.transport = t
	s.state = StateHandshaking
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	metrics.Default().SessionState.WithLabelValues(s.providerID).Set(1)

	go s.dispatchLoop(t)

	if err := s.handshake(ctx); err != nil {
		s.markDegraded(t, fmt.Sprintf("handshake: %v", err))
		return err
	}

	s.mu.Lock()
	s.state = StateDiscovery
	s.mu.Unlock()

	if err := s.DiscoverCapabilities(ctx); err != nil {
		s.markDegraded(t, fmt.Sprintf("discovery: %v", err))
		return err
	}

	s.mu.Lock()
	s.state = StateReady
	close(s.readyCh)
	s.mu.Unlock()

	metrics.Default().SessionState.WithLabelValues(s.providerID).Set(2)
	s.logger.Info().Int64("generation", gen).Msg("Session ready")
	return nil
}

// handshake exchanges protocol version and client identity
func (s *Session) handshake(ctx context.Context) error {
	resp, err := s.call(ctx, protocol.MethodInitialize, protocol.NewInitializeParams(), s.invokeTimeout)
	if err != nil {
		return &HandshakeError{ProviderID: s.providerID, Reason: err.Error()}
	}

	var result protocol.InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return &HandshakeError{ProviderID: s.providerID, Reason: fmt.Sprintf("malformed initialize result: %v", err)}
	}

	if result.ProtocolVersion != protocol.ProtocolVersion {
		return &HandshakeError{
			ProviderID: s.providerID,
			Reason:     fmt.Sprintf("protocol version mismatch: server %q, client %q", result.ProtocolVersion, protocol.ProtocolVersion),
		}
	}

	s.mu.Lock()
	s.serverInfo = result.ServerInfo
	t := s.transport
	s.mu.Unlock()

	// The server expects the initialized notification before list/call methods
	frame, err := json.Marshal(protocol.NewNotificationRequest(protocol.MethodInitialized, nil))
	if err != nil {
		return err
	}
	if err := t.Send(ctx, frame); err != nil {
		return &HandshakeError{ProviderID: s.providerID, Reason: fmt.Sprintf("initialized notification: %v", err)}
	}

	return nil
}

// dispatchLoop routes inbound frames for one transport generation. Responses
// resolve pending calls by correlation ID; notifications go to the observer
// and never block pending invokes.
func (s *Session) dispatchLoop(t transport.Transport) {
	for frame := range t.Frames() {
		resp, note, err := protocol.DecodeFrame(frame)
		if err != nil {
			s.logger.Error().Err(err).Msg("Dropping undecodable frame")
			continue
		}

		if note != nil {
			if s.observer != nil {
				s.observer(s.providerID, *note)
			}
			continue
		}

		id, ok := resp.ResponseID()
		if !ok {
			s.logger.Warn().Msg("Dropping response with unusable id")
			continue
		}

		s.mu.Lock()
		ch, exists := s.pending[id]
		if exists {
			delete(s.pending, id)
		}
		s.mu.Unlock()

		if !exists {
			// Response for an unknown identifier is dropped, not fatal
			s.logger.Warn().Str("id", id).Msg("Dropping response for unknown request id")
			continue
		}
		ch <- resp
	}

	if err := t.Err(); err != nil {
		s.markDegraded(t, err.Error())
	}
}

// markDegraded fails all pending calls and flips the session to degraded.
// The death of an abandoned transport must not degrade a later generation,
// so only the session's current transport may trigger it.
func (s *Session) markDegraded(t transport.Transport, reason string) {
	s.mu.Lock()
	if s.closed || s.state == StateDegraded || s.transport != t {
		s.mu.Unlock()
		return
	}
	if s.state == StateReady {
		s.readyCh = make(chan struct{})
	}
	s.state = StateDegraded
	pending := s.pending
	s.pending = make(map[string]chan *protocol.Response)
	s.mu.Unlock()

	for id, ch := range pending {
		ch <- &protocol.Response{
			ID:    id,
			Error: &protocol.RPCError{Code: -32000, Message: fmt.Sprintf("transport lost: %s", reason)},
		}
	}

	metrics.Default().SessionState.WithLabelValues(s.providerID).Set(3)
	s.logger.Warn().Str("reason", reason).Msg("Session degraded")

	if s.onDegraded != nil {
		go s.onDegraded(s.providerID)
	}
}

// awaitReady blocks until the session is ready, queueing the caller behind an
// in-flight reconnect.
func (s *Session) awaitReady(ctx context.Context) error {
	for {
		s.mu.Lock()
		state := s.state
		ready := s.readyCh
		s.mu.Unlock()

		switch state {
		case StateReady:
			return nil
		case StateClosed:
			return fmt.Errorf("session %s is closed", s.providerID)
		}

		select {
		case <-ready:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// call sends one correlated request and awaits the matching response
func (s *Session) call(ctx context.Context, method string, params interface{}, timeout time.Duration) (*protocol.Response, error) {
	return s.callWithID(ctx, nextRequestID(), method, params, timeout)
}

func (s *Session) callWithID(ctx context.Context, id, method string, params interface{}, timeout time.Duration) (*protocol.Response, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("session %s is closed", s.providerID)
	}
	t := s.transport
	if t == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("session %s has no transport", s.providerID)
	}
	ch := make(chan *protocol.Response, 1)
	s.pending[id] = ch
	s.mu.Unlock()

	abandon := func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}

	frame, err := json.Marshal(protocol.NewRequest(id, method, params))
	if err != nil {
		abandon()
		return nil, err
	}

	if err := t.Send(ctx, frame); err != nil {
		abandon()
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return resp, resp.Error
		}
		return resp, nil
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	case <-time.After(timeout):
		abandon()
		return nil, fmt.Errorf("request %s timed out after %v", method, timeout)
	}
}

// Invoke dispatches one tool invocation and awaits its correlated result.
// Concurrent invocations on one session are multiplexed; a timeout yields a
// transport-error result for this invocation only.
func (s *Session) Invoke(ctx context.Context, req invocation.Request) invocation.Result {
	start := time.Now()
	m := metrics.Default()

	if err := s.awaitReady(ctx); err != nil {
		return invocation.TransportErrorResult(req, err.Error())
	}

	// Re-validate arguments against the cached descriptor before dispatch.
	// Provider-declared schemas are untrusted and re-checked per invocation.
	caps := s.Capabilities()
	if desc, ok := caps.Tool(req.Tool); ok {
		if err := protocol.ValidateArguments(desc, req.Arguments); err != nil {
			m.InvocationErrorsTotal.WithLabelValues(s.providerID, "schema").Inc()
			return invocation.ProviderErrorResult(req, -32602, err.Error())
		}
	}

	params := protocol.CallToolParams{Name: req.Tool, Arguments: req.Arguments}
	resp, err := s.callWithID(ctx, req.InvocationID, protocol.MethodCallTool, params, s.invokeTimeout)

	var result invocation.Result
	switch {
	case err == nil:
		result = invocation.SuccessResult(req, resp.Result)
	case resp != nil && resp.Error != nil:
		result = invocation.ProviderErrorResult(req, resp.Error.Code, resp.Error.Message)
	default:
		result = invocation.TransportErrorResult(req, err.Error())
	}

	m.InvocationsTotal.WithLabelValues(s.providerID, req.Tool, string(result.Kind)).Inc()
	m.InvocationDuration.WithLabelValues(s.providerID, req.Tool).Observe(time.Since(start).Seconds())

	return result
}

// ReadResource reads one resource by URI
func (s *Session) ReadResource(ctx context.Context, uri string) (json.RawMessage, error) {
	if err := s.awaitReady(ctx); err != nil {
		return nil, err
	}
	resp, err := s.call(ctx, protocol.MethodReadResource, protocol.ReadResourceParams{URI: uri}, s.invokeTimeout)
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// Close tears the session down permanently
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.state = StateClosed
	t := s.transport
	pending := s.pending
	s.pending = make(map[string]chan *protocol.Response)
	s.mu.Unlock()

	for id, ch := range pending {
		ch <- &protocol.Response{
			ID:    id,
			Error: &protocol.RPCError{Code: -32000, Message: "session closed"},
		}
	}

	metrics.Default().SessionState.WithLabelValues(s.providerID).Set(0)

	if t != nil {
		return t.Close()
	}
	return nil
}
