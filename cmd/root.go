package cmd

import (
	"os"

	"github.com/crytic/forkbench/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "forkbench",
	Short: "A benchmark of contract calls against pinned historical chain state",
	Long: "forkbench repeatedly executes contract calls against the state of a historical block, fetched lazily " +
		"from a JSON-RPC node and cached in memory",
}

// cmdLogger is the logger that will be used for the cmd package
var cmdLogger = logging.NewLogger(zerolog.InfoLevel)

func init() {
	cmdLogger.AddWriter(os.Stdout, logging.UNSTRUCTURED, true)
}

func Execute() error {
	return rootCmd.Execute()
}
