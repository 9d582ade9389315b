package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List tools discovered from the configured providers",
	RunE:  runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	h, err := newHost(ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	caps := h.registry.ReadyCapabilities()
	if len(caps) == 0 {
		fmt.Println("No providers ready.")
		return nil
	}

	providers := make([]string, 0, len(caps))
	for id := range caps {
		providers = append(providers, id)
	}
	sort.Strings(providers)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "PROVIDER\tTOOL\tDESCRIPTION")
	for _, id := range providers {
		set := caps[id]
		if set.ToolsUnavailable {
			fmt.Fprintf(w, "%s\t(tools unavailable)\t\n", id)
			continue
		}
		for _, tool := range set.Tools {
			fmt.Fprintf(w, "%s\t%s\t%s\n", id, tool.Name, tool.Description)
		}
	}

	return nil
}
