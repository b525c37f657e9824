package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
	commit    = "unknown"
)

// SetVersionInfo sets the build-time version metadata for all commands.
func SetVersionInfo(v, b, c string) {
	version = v
	buildTime = b
	commit = c
}

// VersionCmd prints the build's version metadata.
func VersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("abridge version %s\n", version)
			fmt.Printf("build time: %s\n", buildTime)
			fmt.Printf("commit: %s\n", commit)
		},
	}
}
