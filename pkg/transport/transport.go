package transport

import (
	"context"
	"fmt"
	"strings"
)

// Transport is one framed, bidirectional connection to a provider. Frames are
// complete JSON-RPC envelopes; framing (newline, websocket message) is the
// transport's concern.
type Transport interface {
	// Send writes one frame. Safe for concurrent use.
	Send(ctx context.Context, frame []byte) error

	// Frames returns the inbound frame channel. The channel is closed when
	// the transport fails or is closed; Err reports why.
	Frames() <-chan []byte

	// Err returns the terminal error after Frames closes, or nil on a clean
	// shutdown.
	Err() error

	// Close tears the connection down and releases resources.
	Close() error
}

// Kind selects a transport implementation
type Kind string

const (
	KindStdio     Kind = "stdio"
	KindWebSocket Kind = "websocket"
)

// Endpoint describes how to reach one provider
type Endpoint struct {
	Kind    Kind     `json:"kind" mapstructure:"kind"`
	URL     string   `json:"url,omitempty" mapstructure:"url"`         // websocket
	Command string   `json:"command,omitempty" mapstructure:"command"` // stdio
	Args    []string `json:"args,omitempty" mapstructure:"args"`       // stdio
}

// Validate checks the endpoint is complete for its kind
func (e Endpoint) Validate() error {
	switch e.Kind {
	case KindStdio:
		if strings.TrimSpace(e.Command) == "" {
			return fmt.Errorf("stdio endpoint requires a command")
		}
	case KindWebSocket:
		if strings.TrimSpace(e.URL) == "" {
			return fmt.Errorf("websocket endpoint requires a url")
		}
	default:
		return fmt.Errorf("unknown transport kind: %q", e.Kind)
	}
	return nil
}

// Dial establishes a transport for the endpoint
func Dial(ctx context.Context, ep Endpoint) (Transport, error) {
	if err := ep.Validate(); err != nil {
		return nil, err
	}
	switch ep.Kind {
	case KindStdio:
		return DialStdio(ctx, ep.Command, ep.Args)
	case KindWebSocket:
		return DialWebSocket(ctx, ep.URL)
	default:
		return nil, fmt.Errorf("unknown transport kind: %q", ep.Kind)
	}
}
