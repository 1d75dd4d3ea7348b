package cmd

import (
	"fmt"

	"github.com/crytic/forkbench/version"
	"github.com/spf13/cobra"
)

// versionCmd represents the version command that displays build information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and build information",
	Long: `Print detailed version and build information for forkbench.

This includes the semantic version, git commit hash, build timestamp,
and Go version used to compile the binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		info := version.GetInfo()
		if _, err := info.SemVer(); err != nil {
			cmdLogger.Warn("Version is not a valid semantic version", err)
		}
		fmt.Print(info.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = version.GetInfo().Short()
}
