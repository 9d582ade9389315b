package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "List resources exposed by the configured providers",
	RunE:  runResources,
}

var readCmd = &cobra.Command{
	Use:   "read [provider] [uri]",
	Short: "Read one resource from a provider",
	Args:  cobra.ExactArgs(2),
	RunE:  runRead,
}

func init() {
	rootCmd.AddCommand(resourcesCmd)
	rootCmd.AddCommand(readCmd)
}

func runResources(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	h, err := newHost(ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	caps := h.registry.ReadyCapabilities()

	providers := make([]string, 0, len(caps))
	for id := range caps {
		providers = append(providers, id)
	}
	sort.Strings(providers)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "PROVIDER\tURI\tNAME")
	for _, id := range providers {
		set := caps[id]
		if set.ResourcesUnavailable {
			fmt.Fprintf(w, "%s\t(resources unavailable)\t\n", id)
			continue
		}
		for _, res := range set.Resources {
			fmt.Fprintf(w, "%s\t%s\t%s\n", id, res.URI, res.Name)
		}
	}

	return nil
}

func runRead(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	h, err := newHost(ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	session, err := h.registry.Get(args[0])
	if err != nil {
		return err
	}

	payload, err := session.ReadResource(ctx, args[1])
	if err != nil {
		return err
	}

	fmt.Println(string(payload))
	return nil
}
