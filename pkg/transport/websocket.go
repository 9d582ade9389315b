package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// handshakeTimeout bounds the websocket dial
const handshakeTimeout = 10 * time.Second

// WebSocketTransport speaks JSON-RPC over a websocket connection, one
// envelope per text message.
type WebSocketTransport struct {
	conn   *websocket.Conn
	frames chan []byte

	writeMu sync.Mutex

	mu     sync.Mutex
	err    error
	closed bool
}

// DialWebSocket connects to a provider's websocket endpoint
func DialWebSocket(ctx context.Context, url string) (*WebSocketTransport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}

	t := &WebSocketTransport{
		conn:   conn,
		frames: make(chan []byte, 32),
	}

	go t.readLoop()

	return t, nil
}

func (t *WebSocketTransport) readLoop() {
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			if !t.closed {
				t.err = fmt.Errorf("websocket read: %w", err)
			}
			t.mu.Unlock()
			close(t.frames)
			return
		}
		if msgType != websocket.TextMessage {
			log.Debug().Int("type", msgType).Msg("Ignoring non-text websocket message")
			continue
		}
		t.frames <- data
	}
}

// Send writes one frame as a text message
func (t *WebSocketTransport) Send(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport closed")
	}
	if t.err != nil {
		err := t.err
		t.mu.Unlock()
		return fmt.Errorf("transport failed: %w", err)
	}
	t.mu.Unlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
	} else {
		_ = t.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	}

	if err := t.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.mu.Lock()
		t.err = err
		t.mu.Unlock()
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Frames returns the inbound frame channel
func (t *WebSocketTransport) Frames() <-chan []byte {
	return t.frames
}

// Err returns the terminal error, if any
func (t *WebSocketTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	return t.err
}

// Close closes the websocket connection
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.writeMu.Lock()
	_ = t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	t.writeMu.Unlock()

	return t.conn.Close()
}
