package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ramsred/agentic-platform-mcp/pkg/agentloop"
	"github.com/ramsred/agentic-platform-mcp/pkg/conversation"
)

var askCmd = &cobra.Command{
	Use:   "ask [query]",
	Short: "Run one interaction against the configured providers",
	Long: `Ask runs a full interaction: the reasoning engine plans, proposed tool
invocations pass through the policy gate, and results feed back into planning
until the engine produces an answer or the iteration budget runs out.

Invocations that require approval are prompted on this terminal.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := newHost(ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	approver := newConsoleApprover(h.gate.Approvals())
	approver.Start()
	defer approver.Stop()

	query := strings.Join(args, " ")
	outcome := h.loop.Run(ctx, conversation.New(), query)

	switch outcome.State {
	case agentloop.StateAnswer:
		fmt.Println(outcome.Answer)
		return nil
	case agentloop.StateCancelled:
		return fmt.Errorf("interaction cancelled")
	default:
		return fmt.Errorf("interaction failed: %s", outcome.Reason)
	}
}
