// Package cli implements the chunkmesh command-line interface using
// Cobra. The daemon and tracker subcommands run long-lived processes;
// the rest talk to a running daemon over its HTTP API.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chunkmesh",
	Short: "chunkmesh — peer-to-peer file distribution",
	Long: `chunkmesh is a peer-to-peer file distribution engine with
content-addressed chunking, per-chunk integrity verification, and
reputation-driven peer selection.

Run a tracker, run a peer daemon, share files, and fetch them by hash.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
