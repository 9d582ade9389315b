package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramsred/agentic-platform-mcp/pkg/mcpclient"
	"github.com/ramsred/agentic-platform-mcp/pkg/protocol"
	"github.com/ramsred/agentic-platform-mcp/pkg/transport"
)

// scriptedTransport answers the handshake and discovery methods of one
// provider so a session can reach ready without a real process.
type scriptedTransport struct {
	mu     sync.Mutex
	frames chan []byte
	err    error
	closed bool

	protocolVersion string
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{
		frames:          make(chan []byte, 32),
		protocolVersion: protocol.ProtocolVersion,
	}
}

func (s *scriptedTransport) Send(_ context.Context, frame []byte) error {
	var req struct {
		ID     interface{} `json:"id"`
		Method string      `json:"method"`
	}
	if err := json.Unmarshal(frame, &req); err != nil {
		return err
	}
	if req.ID == nil {
		return nil
	}

	var result interface{}
	switch req.Method {
	case protocol.MethodInitialize:
		result = map[string]interface{}{
			"protocolVersion": s.protocolVersion,
			"capabilities":    map[string]interface{}{},
			"serverInfo":      map[string]string{"name": "scripted", "version": "1.0"},
		}
	case protocol.MethodListTools:
		result = map[string]interface{}{"tools": []interface{}{
			map[string]interface{}{"name": "ping", "description": "Ping"},
		}}
	case protocol.MethodListResources:
		result = map[string]interface{}{"resources": []interface{}{}}
	case protocol.MethodListPrompts:
		result = map[string]interface{}{"prompts": []interface{}{}}
	default:
		result = map[string]interface{}{}
	}

	raw, _ := json.Marshal(result)
	reply, _ := json.Marshal(protocol.Response{JSONRPC: "2.0", ID: req.ID, Result: raw})

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.frames <- reply
	}
	return nil
}

func (s *scriptedTransport) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.frames)
}

func (s *scriptedTransport) Frames() <-chan []byte { return s.frames }

func (s *scriptedTransport) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *scriptedTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
	return nil
}

func (s *scriptedTransport) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// trackingDialer hands out scripted transports and counts dials per provider
type trackingDialer struct {
	mu      sync.Mutex
	dials   map[string]int
	failFor map[string]error
	last    map[string]*scriptedTransport
}

func newTrackingDialer() *trackingDialer {
	return &trackingDialer{
		dials:   make(map[string]int),
		failFor: make(map[string]error),
		last:    make(map[string]*scriptedTransport),
	}
}

func (d *trackingDialer) dialFor(providerID string) (transport.Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials[providerID]++
	if err := d.failFor[providerID]; err != nil {
		return nil, err
	}
	t := newScriptedTransport()
	d.last[providerID] = t
	return t, nil
}

func (d *trackingDialer) dialCount(providerID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[providerID]
}

func (d *trackingDialer) transport(providerID string) *scriptedTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last[providerID]
}

// byEndpointDialer routes on the endpoint URL so one registry can reach
// multiple scripted providers.
func byEndpointDialer(d *trackingDialer) Dialer {
	return func(ctx context.Context, ep transport.Endpoint) (transport.Transport, error) {
		return d.dialFor(ep.URL)
	}
}

func wsEndpoint(id string) transport.Endpoint {
	return transport.Endpoint{Kind: transport.KindWebSocket, URL: id}
}

func newTestRegistry(d Dialer) *Registry {
	return New(Config{
		Dialer:           d,
		Logger:           zerolog.Nop(),
		ReconnectInitial: 5 * time.Millisecond,
		ReconnectCap:     20 * time.Millisecond,
	})
}

func TestOpenAndGet(t *testing.T) {
	d := newTrackingDialer()
	r := newTestRegistry(byEndpointDialer(d))
	defer r.CloseAll()

	session, err := r.Open(context.Background(), ProviderConfig{ID: "web", Endpoint: wsEndpoint("web")})
	require.NoError(t, err)
	assert.Equal(t, mcpclient.StateReady, session.State())

	got, err := r.Get("web")
	require.NoError(t, err)
	assert.Same(t, session, got)

	caps := r.ReadyCapabilities()
	require.Contains(t, caps, "web")
	assert.Len(t, caps["web"].Tools, 1)
}

func TestOpenIsIdempotentPerProvider(t *testing.T) {
	d := newTrackingDialer()
	r := newTestRegistry(byEndpointDialer(d))
	defer r.CloseAll()

	first, err := r.Open(context.Background(), ProviderConfig{ID: "web", Endpoint: wsEndpoint("web")})
	require.NoError(t, err)

	second, err := r.Open(context.Background(), ProviderConfig{ID: "web", Endpoint: wsEndpoint("web")})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, d.dialCount("web"))
}

func TestOpenRollsBackOnDialFailure(t *testing.T) {
	d := newTrackingDialer()
	d.failFor["web"] = fmt.Errorf("connection refused")
	r := newTestRegistry(byEndpointDialer(d))
	defer r.CloseAll()

	_, err := r.Open(context.Background(), ProviderConfig{ID: "web", Endpoint: wsEndpoint("web")})
	require.Error(t, err)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "web", connErr.ProviderID)

	// The reserved slot was rolled back
	_, err = r.Get("web")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestOpenSurfacesHandshakeError(t *testing.T) {
	r := newTestRegistry(func(ctx context.Context, ep transport.Endpoint) (transport.Transport, error) {
		st := newScriptedTransport()
		st.protocolVersion = "1999-01-01"
		return st, nil
	})
	defer r.CloseAll()

	_, err := r.Open(context.Background(), ProviderConfig{ID: "web", Endpoint: wsEndpoint("web")})

	var hsErr *mcpclient.HandshakeError
	assert.ErrorAs(t, err, &hsErr)
}

func TestGetUnknownProvider(t *testing.T) {
	r := newTestRegistry(byEndpointDialer(newTrackingDialer()))
	defer r.CloseAll()

	_, err := r.Get("never-opened")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestReconnectAfterTransportLoss(t *testing.T) {
	d := newTrackingDialer()
	r := newTestRegistry(byEndpointDialer(d))
	defer r.CloseAll()

	session, err := r.Open(context.Background(), ProviderConfig{ID: "web", Endpoint: wsEndpoint("web")})
	require.NoError(t, err)

	d.transport("web").fail(fmt.Errorf("connection reset"))

	require.Eventually(t, func() bool {
		return session.State() == mcpclient.StateReady && d.dialCount("web") >= 2
	}, 2*time.Second, 5*time.Millisecond, "session never reconnected")

	// Discovery re-ran under a new generation
	assert.Greater(t, session.Capabilities().Generation, int64(1))
}

func TestFailedReconnectAttemptsCloseTheirTransports(t *testing.T) {
	var mu sync.Mutex
	var dials int
	var first *scriptedTransport
	var rejected []*scriptedTransport

	r := newTestRegistry(func(ctx context.Context, ep transport.Endpoint) (transport.Transport, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		st := newScriptedTransport()
		if dials == 1 {
			first = st
		} else {
			// every reconnect attempt fails the handshake
			st.protocolVersion = "1999-01-01"
			rejected = append(rejected, st)
		}
		return st, nil
	})
	defer r.CloseAll()

	_, err := r.Open(context.Background(), ProviderConfig{ID: "web", Endpoint: wsEndpoint("web")})
	require.NoError(t, err)

	first.fail(fmt.Errorf("connection reset"))

	// Abandoned attempts release their transports; the newest dial may
	// still be mid-attach.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		closed := 0
		for _, st := range rejected {
			if st.isClosed() {
				closed++
			}
		}
		return closed >= 2
	}, 2*time.Second, 5*time.Millisecond, "failed reconnect attempts leaked their transports")
}

func TestFailureIsolationBetweenProviders(t *testing.T) {
	d := newTrackingDialer()
	r := newTestRegistry(byEndpointDialer(d))
	defer r.CloseAll()

	_, err := r.Open(context.Background(), ProviderConfig{ID: "web", Endpoint: wsEndpoint("web")})
	require.NoError(t, err)
	files, err := r.Open(context.Background(), ProviderConfig{ID: "files", Endpoint: wsEndpoint("files")})
	require.NoError(t, err)

	// Make reconnects for "web" keep failing, then kill its transport
	d.mu.Lock()
	d.failFor["web"] = fmt.Errorf("still down")
	d.mu.Unlock()
	d.transport("web").fail(fmt.Errorf("connection reset"))

	time.Sleep(50 * time.Millisecond)

	// The healthy provider is untouched
	assert.Equal(t, mcpclient.StateReady, files.State())
	caps := r.ReadyCapabilities()
	assert.Contains(t, caps, "files")
	assert.NotContains(t, caps, "web")
}

func TestCloseAllTearsDownEverySession(t *testing.T) {
	d := newTrackingDialer()
	r := newTestRegistry(byEndpointDialer(d))

	web, err := r.Open(context.Background(), ProviderConfig{ID: "web", Endpoint: wsEndpoint("web")})
	require.NoError(t, err)
	files, err := r.Open(context.Background(), ProviderConfig{ID: "files", Endpoint: wsEndpoint("files")})
	require.NoError(t, err)

	require.NoError(t, r.CloseAll())

	assert.Equal(t, mcpclient.StateClosed, web.State())
	assert.Equal(t, mcpclient.StateClosed, files.State())

	_, err = r.Get("web")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = r.Open(context.Background(), ProviderConfig{ID: "web", Endpoint: wsEndpoint("web")})
	assert.Error(t, err)

	// Idempotent
	assert.NoError(t, r.CloseAll())
}
