// Command evileye runs an evileye gateway and helps with signing requests.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Build info (set via ldflags).
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "evileye",
		Short: "Event-sourced GraphQL gateway",
		Long: `evileye serves commands and queries over an event log through a
GraphQL endpoint, authenticating callers by signed requests.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newSignCmd(),
		newVersionCmd(),
	)
	return rootCmd
}
