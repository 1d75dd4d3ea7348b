package cmd

import (
	"fmt"
	"strings"

	"github.com/crytic/forkbench/benchmark/config"
	"github.com/crytic/forkbench/chain/state"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// addRunFlags adds the various flags for the run command
func addRunFlags() error {
	// Get the default project config
	defaultConfig := config.GetDefaultProjectConfig()

	// Prevent alphabetical sorting of usage message
	runCmd.Flags().SortFlags = false

	// Config file
	runCmd.Flags().String("config", "", "path to config file")

	// Endpoint
	runCmd.Flags().String("rpc-url", "",
		"JSON-RPC endpoint to fetch state from (default is $NODE_URL, or an Infura endpoint built from $INFURA_PROJECT_ID)")

	// Pinned block
	runCmd.Flags().Uint64("block", 0,
		"block to pin the state to. 0 pins the state to the chain head minus the block offset")
	runCmd.Flags().Uint64("block-offset", 0,
		fmt.Sprintf("number of blocks behind the chain head to pin the state to (unless a config file is provided, default is %d)", defaultConfig.Fork.BlockOffset))

	// Transport
	runCmd.Flags().Uint("pool-size", 0,
		fmt.Sprintf("number of connections to the endpoint (unless a config file is provided, default is %d)", defaultConfig.Fork.PoolSize))

	// Caching
	runCmd.Flags().Bool("persist-cache", false,
		fmt.Sprintf("persist fetched state on disk, keyed by endpoint and block (unless a config file is provided, default is %t)", defaultConfig.Fork.PersistCache))
	runCmd.Flags().String("failure-policy", "",
		fmt.Sprintf("what to do when a remote fetch fails, \"default\" or \"abort\" (unless a config file is provided, default is %q)", defaultConfig.Fork.FailurePolicy))

	// Runs
	runCmd.Flags().Uint64("runs", 0,
		fmt.Sprintf("number of timed executions per call (unless a config file is provided, default is %d)", defaultConfig.Benchmark.Runs))

	// Calls
	runCmd.Flags().StringArray("call", []string{},
		"name of a configured call to benchmark, may be repeated (default is every configured call)")
	runCmd.Flags().String("to", "", "address of the contract to call, replacing the configured calls")
	runCmd.Flags().String("data", "", "hex encoded calldata sent with --to")

	// Reporting
	runCmd.Flags().String("json", "", "write a JSON report to the given path, or to stdout if the path is \"-\"")
	runCmd.Flags().String("log-level", "",
		fmt.Sprintf("log level (unless a config file is provided, default is %q)", defaultConfig.Logging.Level.String()))
	runCmd.Flags().Bool("no-color", false, "disable colored terminal output")

	// Completion of flag values
	err := runCmd.RegisterFlagCompletionFunc("failure-policy", cobra.FixedCompletions(
		[]string{string(state.FailurePolicyDefault), string(state.FailurePolicyAbort)}, cobra.ShellCompDirectiveNoFileComp))
	if err != nil {
		return err
	}
	err = runCmd.RegisterFlagCompletionFunc("log-level", cobra.FixedCompletions(
		[]string{"trace", "debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp))
	if err != nil {
		return err
	}
	return runCmd.RegisterFlagCompletionFunc("call", completeRunCallNames)
}

// completeRunCallNames suggests the call names of the config file selected by --config, or of forkbench.json in the
// working directory. Without a readable config file, the default calls are suggested.
func completeRunCallNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil || configPath == "" {
		configPath = DefaultProjectConfigFilename
	}
	projectConfig, err := config.ReadProjectConfigFromFile(configPath)
	if err != nil {
		projectConfig = config.GetDefaultProjectConfig()
	}

	names := make([]string, 0, len(projectConfig.Benchmark.Calls))
	for _, call := range projectConfig.Benchmark.Calls {
		if strings.HasPrefix(call.Name, toComplete) {
			names = append(names, call.Name)
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

// updateProjectConfigWithRunFlags will update the given projectConfig with any CLI arguments that were provided to the
// run command
func updateProjectConfigWithRunFlags(cmd *cobra.Command, projectConfig *config.ProjectConfig) error {
	var err error

	// Update the endpoint
	if cmd.Flags().Changed("rpc-url") {
		projectConfig.Fork.RpcUrl, err = cmd.Flags().GetString("rpc-url")
		if err != nil {
			return err
		}
	}

	// Update the pinned block
	if cmd.Flags().Changed("block") {
		projectConfig.Fork.RpcBlock, err = cmd.Flags().GetUint64("block")
		if err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("block-offset") {
		projectConfig.Fork.BlockOffset, err = cmd.Flags().GetUint64("block-offset")
		if err != nil {
			return err
		}
	}

	// Update the transport and caching options
	if cmd.Flags().Changed("pool-size") {
		projectConfig.Fork.PoolSize, err = cmd.Flags().GetUint("pool-size")
		if err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("persist-cache") {
		projectConfig.Fork.PersistCache, err = cmd.Flags().GetBool("persist-cache")
		if err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("failure-policy") {
		projectConfig.Fork.FailurePolicy, err = cmd.Flags().GetString("failure-policy")
		if err != nil {
			return err
		}
	}

	// Update the run count
	if cmd.Flags().Changed("runs") {
		projectConfig.Benchmark.Runs, err = cmd.Flags().GetUint64("runs")
		if err != nil {
			return err
		}
	}

	// An ad-hoc call replaces the configured calls, otherwise --call narrows them down
	if cmd.Flags().Changed("to") {
		to, err := cmd.Flags().GetString("to")
		if err != nil {
			return err
		}
		data, err := cmd.Flags().GetString("data")
		if err != nil {
			return err
		}
		projectConfig.Benchmark.Calls = []config.CallConfig{{Name: to, To: to, Data: data}}
	} else if cmd.Flags().Changed("data") {
		return fmt.Errorf("--data requires --to")
	} else if cmd.Flags().Changed("call") {
		names, err := cmd.Flags().GetStringArray("call")
		if err != nil {
			return err
		}
		projectConfig.Benchmark.Calls, err = projectConfig.Benchmark.SelectCalls(names)
		if err != nil {
			return err
		}
	}

	// Update logging
	if cmd.Flags().Changed("log-level") {
		levelString, err := cmd.Flags().GetString("log-level")
		if err != nil {
			return err
		}
		projectConfig.Logging.Level, err = zerolog.ParseLevel(levelString)
		if err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("no-color") {
		projectConfig.Logging.NoColor, err = cmd.Flags().GetBool("no-color")
		if err != nil {
			return err
		}
	}
	return nil
}
