package cmd

import (
	"github.com/crytic/forkbench/benchmark/config"
	"github.com/spf13/cobra"
)

// addInitFlags adds the various flags for the init command
func addInitFlags() error {
	// Output path for configuration
	initCmd.Flags().String("out", "", "output path for the new project configuration file")

	// Endpoint written into the configuration
	initCmd.Flags().String("rpc-url", "", "JSON-RPC endpoint to store in the configuration")

	return nil
}

// updateProjectConfigWithInitFlags will update the given projectConfig with any CLI arguments that were provided to the init command
func updateProjectConfigWithInitFlags(cmd *cobra.Command, projectConfig *config.ProjectConfig) error {
	// Update the endpoint if necessary
	if cmd.Flags().Changed("rpc-url") {
		rpcUrl, err := cmd.Flags().GetString("rpc-url")
		if err != nil {
			return err
		}
		projectConfig.Fork.RpcUrl = rpcUrl
	}
	return nil
}
