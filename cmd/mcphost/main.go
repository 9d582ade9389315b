package main

import (
	"os"

	"github.com/ramsred/agentic-platform-mcp/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
