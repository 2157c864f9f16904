// Command docqa answers questions about PDF documents with a local or hosted
// language model. It runs as an HTTP API, a one-shot CLI or an MCP server.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/docqa/internal/config"
	"github.com/kailas-cloud/docqa/internal/version"
)

var envName string

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Ask questions about PDF documents",
	Long: `docqa loads a PDF, splits it into chunks, embeds them into an in-memory
vector index cached by content, retrieves the passages closest to a question
and asks a language model to answer from them.

Configuration is read from config/<env>.yaml. Credentials may be placed in a
.env file next to it.`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envName, "env", config.GetEnv(),
		"configuration environment: local, docker or prod (default from $ENV)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errSilent) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
