// Package registry owns the set of active provider sessions: connection
// establishment, capability caching, reconnection, and scoped teardown.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ramsred/agentic-platform-mcp/pkg/mcpclient"
	"github.com/ramsred/agentic-platform-mcp/pkg/protocol"
	"github.com/ramsred/agentic-platform-mcp/pkg/transport"
)

// ErrUnknownProvider is returned by Get for providers never opened
var ErrUnknownProvider = errors.New("unknown provider")

// ConnectionError reports a failed transport establishment
type ConnectionError struct {
	ProviderID string
	Err        error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to provider %s: %v", e.ProviderID, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ProviderConfig describes one provider to connect to
type ProviderConfig struct {
	ID             string
	Endpoint       transport.Endpoint
	ConnectTimeout time.Duration
	InvokeTimeout  time.Duration
}

// Dialer establishes a transport for an endpoint; injectable for tests
type Dialer func(ctx context.Context, ep transport.Endpoint) (transport.Transport, error)

// Config holds registry configuration
type Config struct {
	Observer mcpclient.NotificationObserver
	Dialer   Dialer
	Logger   zerolog.Logger

	// Reconnect backoff; defaults: 1s initial, 30s cap
	ReconnectInitial time.Duration
	ReconnectCap     time.Duration
}

// Registry is the sole owner of the session table. The table is the only
// structure shared across concurrent interactions; all access is
// synchronized so no two callers race to open duplicate sessions.
type Registry struct {
	observer         mcpclient.NotificationObserver
	dialer           Dialer
	logger           zerolog.Logger
	reconnectInitial time.Duration
	reconnectCap     time.Duration

	mu       sync.Mutex
	sessions map[string]*mcpclient.Session
	configs  map[string]ProviderConfig
	closed   bool

	// lifecycle for reconnect goroutines
	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// New creates an empty registry
func New(cfg Config) *Registry {
	if cfg.Dialer == nil {
		cfg.Dialer = transport.Dial
	}
	if cfg.ReconnectInitial <= 0 {
		cfg.ReconnectInitial = time.Second
	}
	if cfg.ReconnectCap <= 0 {
		cfg.ReconnectCap = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Registry{
		observer:         cfg.Observer,
		dialer:           cfg.Dialer,
		logger:           cfg.Logger,
		reconnectInitial: cfg.ReconnectInitial,
		reconnectCap:     cfg.ReconnectCap,
		sessions:         make(map[string]*mcpclient.Session),
		configs:          make(map[string]ProviderConfig),
		baseCtx:          ctx,
		baseCancel:       cancel,
	}
}

// Open establishes or returns an existing session for a provider. Fails with
// ConnectionError if the transport cannot be established within the
// configured timeout.
func (r *Registry) Open(ctx context.Context, cfg ProviderConfig) (*mcpclient.Session, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("provider id is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("registry is closed")
	}
	if existing, ok := r.sessions[cfg.ID]; ok {
		r.mu.Unlock()
		return existing, nil
	}

	session, err := mcpclient.NewSession(mcpclient.Config{
		ProviderID:    cfg.ID,
		InvokeTimeout: cfg.InvokeTimeout,
		Observer:      r.observer,
		OnDegraded:    r.scheduleReconnect,
		Logger:        r.logger,
	})
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}

	// Reserve the slot before dialing so a concurrent Open for the same
	// provider returns this session instead of opening a duplicate.
	r.sessions[cfg.ID] = session
	r.configs[cfg.ID] = cfg
	r.mu.Unlock()

	if err := r.connect(ctx, session, cfg); err != nil {
		r.mu.Lock()
		delete(r.sessions, cfg.ID)
		delete(r.configs, cfg.ID)
		r.mu.Unlock()
		_ = session.Close()
		return nil, err
	}

	return session, nil
}

func (r *Registry) connect(ctx context.Context, session *mcpclient.Session, cfg ProviderConfig) error {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	t, err := r.dialer(dialCtx, cfg.Endpoint)
	if err != nil {
		return &ConnectionError{ProviderID: cfg.ID, Err: err}
	}

	if err := session.Attach(ctx, t); err != nil {
		// A failed attach abandons the transport; close it so a failed
		// reconnect attempt does not leak a connection or child process.
		_ = t.Close()
		var hsErr *mcpclient.HandshakeError
		if errors.As(err, &hsErr) {
			return err
		}
		return &ConnectionError{ProviderID: cfg.ID, Err: err}
	}
	return nil
}

// Get returns the current session for a provider
func (r *Registry) Get(providerID string) (*mcpclient.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[providerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	return session, nil
}

// Sessions returns a snapshot of all sessions
func (r *Registry) Sessions() []*mcpclient.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*mcpclient.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// ReadyCapabilities returns the union of capability sets of ready sessions,
// keyed by provider ID.
func (r *Registry) ReadyCapabilities() map[string]protocol.CapabilitySet {
	out := make(map[string]protocol.CapabilitySet)
	for _, s := range r.Sessions() {
		if s.State() == mcpclient.StateReady {
			out[s.ProviderID()] = s.Capabilities()
		}
	}
	return out
}

// CloseAll performs scoped teardown of every session. Individual close
// failures are collected, not propagated as a single fatal error.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sessions := make([]*mcpclient.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*mcpclient.Session)
	r.mu.Unlock()

	r.baseCancel()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.ProviderID(), err))
		}
	}

	r.wg.Wait()

	return errors.Join(errs...)
}
