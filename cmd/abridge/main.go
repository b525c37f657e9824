package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orchestre-dev/anthropic-bridge/cmd/abridge/commands"
)

var (
	// Version/BuildTime/Commit are set at build time via -ldflags.
	Version   = "dev"
	BuildTime = "unknown"
	Commit    = "unknown"

	rootCmd = &cobra.Command{
		Use:   "abridge",
		Short: "A local HTTP bridge from the Anthropic Messages API to OpenAI-compatible providers",
		Long: `abridge runs a local HTTP server that accepts Anthropic Messages API
requests and forwards them to any OpenAI-compatible (or Anthropic-compatible)
chat completions endpoint, translating requests, responses, and streams
in both directions.`,
	}
)

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.Version = Version

	commands.SetVersionInfo(Version, BuildTime, Commit)

	rootCmd.AddCommand(commands.StartCmd())
	rootCmd.AddCommand(commands.StatusCmd())
	rootCmd.AddCommand(commands.VersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
