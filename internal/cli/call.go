package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ramsred/agentic-platform-mcp/internal/tracing"
	"github.com/ramsred/agentic-platform-mcp/pkg/invocation"
	"github.com/ramsred/agentic-platform-mcp/pkg/policy"
)

var callArgsJSON string

var callCmd = &cobra.Command{
	Use:   "call [provider] [tool]",
	Short: "Invoke one tool directly, bypassing the reasoning engine",
	Long: `Call dispatches a single tool invocation through the policy gate to the
named provider. The reasoning engine is not involved, but scope rules,
sensitivity rules, and approval prompts still apply.`,
	Args: cobra.ExactArgs(2),
	RunE: runCall,
}

func init() {
	callCmd.Flags().StringVar(&callArgsJSON, "args", "{}", "tool arguments as JSON")
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var toolArgs map[string]interface{}
	if err := json.Unmarshal([]byte(callArgsJSON), &toolArgs); err != nil {
		return fmt.Errorf("invalid --args: %w", err)
	}

	h, err := newHost(ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	approver := newConsoleApprover(h.gate.Approvals())
	approver.Start()
	defer approver.Stop()

	providerID, tool := args[0], args[1]

	session, err := h.registry.Get(providerID)
	if err != nil {
		return err
	}

	req := invocation.NewRequest(providerID, tool, toolArgs)
	ctx = tracing.WithInvocationID(tracing.NewRequestContext(ctx), req.InvocationID)

	ec := policy.EvalContext{InteractionID: "operator"}
	caps := session.Capabilities()
	if desc, ok := caps.Tool(tool); ok {
		ec.Descriptor = &desc
	}

	verdict := h.gate.Evaluate(ctx, req, ec)
	switch verdict.Kind {
	case policy.VerdictDeny:
		return fmt.Errorf("denied: %s", verdict.Reason)
	case policy.VerdictRequireApproval:
		timeout := h.loopApprovalTimeout()
		decision := h.gate.Approvals().Await(ctx, verdict.ApprovalToken, timeout)
		if decision != policy.DecisionApprove {
			return fmt.Errorf("not approved: %s", decision)
		}
	}

	result := session.Invoke(ctx, req)
	if !result.Succeeded() {
		return fmt.Errorf("invocation failed: %s", result.Summary())
	}

	fmt.Println(string(result.Payload))
	return nil
}
