package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ramsred/agentic-platform-mcp/pkg/policy"
)

// consoleApprover watches for pending approvals and prompts the operator on
// the terminal. The approval deadline keeps running while the prompt is up;
// an unanswered prompt times out and denies.
type consoleApprover struct {
	approvals *policy.ApprovalManager
	input     io.Reader

	mu      sync.Mutex
	asked   map[string]bool
	lines   chan string
	stopped chan struct{}
	done    chan struct{}
}

func newConsoleApprover(approvals *policy.ApprovalManager) *consoleApprover {
	return &consoleApprover{
		approvals: approvals,
		input:     os.Stdin,
		asked:     make(map[string]bool),
		lines:     make(chan string),
		stopped:   make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start begins polling for pending approvals
func (a *consoleApprover) Start() {
	go a.readLines()
	go a.loop()
}

// readLines feeds operator input to prompts. It may block on a read forever;
// Stop does not wait for it, only for the poll loop.
func (a *consoleApprover) readLines() {
	reader := bufio.NewReader(a.input)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		select {
		case a.lines <- line:
		case <-a.stopped:
			return
		}
	}
}

// Stop halts the poller
func (a *consoleApprover) Stop() {
	close(a.stopped)
	<-a.done
}

func (a *consoleApprover) loop() {
	defer close(a.done)

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopped:
			return
		case <-ticker.C:
			for _, pending := range a.approvals.Pending() {
				a.mu.Lock()
				seen := a.asked[pending.Token]
				a.asked[pending.Token] = true
				a.mu.Unlock()
				if !seen {
					a.prompt(pending)
				}
			}
		}
	}
}

func (a *consoleApprover) prompt(pending policy.PendingApproval) {
	args, _ := json.Marshal(pending.Request.Arguments)

	fmt.Fprintf(os.Stderr, "\nApproval required (%s): %s/%s %s\n",
		pending.Category, pending.Request.ProviderID, pending.Request.Tool, args)
	fmt.Fprint(os.Stderr, "Approve? [y/N]: ")

	var line string
	select {
	case line = <-a.lines:
	case <-a.stopped:
		// Unanswered prompt; the approval deadline resolves it to timeout
		return
	}

	decision := policy.DecisionDeny
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		decision = policy.DecisionApprove
	}

	if err := a.approvals.Resolve(context.Background(), pending.Token, decision); err != nil {
		// Deadline already passed; nothing to do
		fmt.Fprintf(os.Stderr, "approval not recorded: %v\n", err)
	}
}
