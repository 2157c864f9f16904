package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcpTransport "github.com/kailas-cloud/docqa/internal/transport/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the ask_document tool over MCP stdio",
	Long: `Start a Model Context Protocol server on stdin/stdout.

Tools:
  ask_document             answer a question about a local PDF
  list_indexed_documents   show documents cached in memory

Logs are written to stderr. Example client configuration:
  {
    "mcpServers": {
      "docqa": {"command": "/path/to/docqa", "args": ["mcp", "--env", "local"]}
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, envName)
	if err != nil {
		return err
	}
	defer a.close()

	server, err := mcpTransport.NewServer(a.qa, a.cache, a.logger)
	if err != nil {
		return err
	}
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
