package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/rs/zerolog/log"
)

// maxFrameBytes bounds a single line-delimited frame from a provider process
const maxFrameBytes = 4 * 1024 * 1024

// StdioTransport speaks line-delimited JSON-RPC to a provider subprocess
type StdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	frames chan []byte

	mu     sync.Mutex
	err    error
	closed bool
}

// DialStdio launches the provider process and starts the read loop. The
// context only bounds establishment; the child's lifetime is owned by Close,
// not by the caller's context.
func DialStdio(ctx context.Context, command string, args []string) (*StdioTransport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd := exec.Command(command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start provider process: %w", err)
	}

	t := &StdioTransport{
		cmd:    cmd,
		stdin:  stdin,
		frames: make(chan []byte, 32),
	}

	go t.readLoop(stdout)

	return t, nil
}

func (t *StdioTransport) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxFrameBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		frame := make([]byte, len(line))
		copy(frame, line)
		t.frames <- frame
	}

	t.mu.Lock()
	if !t.closed {
		if err := scanner.Err(); err != nil {
			t.err = fmt.Errorf("provider stdout read: %w", err)
		} else {
			t.err = io.EOF
		}
	}
	t.mu.Unlock()

	close(t.frames)

	if err := t.cmd.Wait(); err != nil {
		log.Debug().Err(err).Msg("Provider process exited")
	}
}

// Send writes one frame followed by a newline
func (t *StdioTransport) Send(_ context.Context, frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transport closed")
	}
	if t.err != nil {
		return fmt.Errorf("transport failed: %w", t.err)
	}

	if _, err := t.stdin.Write(append(frame, '\n')); err != nil {
		t.err = err
		return fmt.Errorf("provider stdin write: %w", err)
	}
	return nil
}

// Frames returns the inbound frame channel
func (t *StdioTransport) Frames() <-chan []byte {
	return t.frames
}

// Err returns the terminal error, if any
func (t *StdioTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == io.EOF && t.closed {
		return nil
	}
	return t.err
}

// Close kills the provider process
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	_ = t.stdin.Close()
	if t.cmd.Process != nil {
		return t.cmd.Process.Kill()
	}
	return nil
}
