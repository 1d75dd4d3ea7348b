package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/crytic/forkbench/benchmark"
	"github.com/crytic/forkbench/benchmark/config"
	"github.com/crytic/forkbench/chain"
	"github.com/crytic/forkbench/chain/state"
	"github.com/crytic/forkbench/chain/state/cache"
	"github.com/crytic/forkbench/cmd/exitcodes"
	"github.com/crytic/forkbench/logging"
	"github.com/crytic/forkbench/logging/colors"
	"github.com/crytic/forkbench/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// runCmd represents the command provider for benchmarking
var runCmd = &cobra.Command{
	Use:               "run",
	Short:             "Benchmarks contract calls against pinned chain state",
	Long:              `Benchmarks contract calls against pinned chain state`,
	Args:              cmdValidateRunArgs,
	ValidArgsFunction: cmdValidRunArgs,
	RunE:              cmdRunRun,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	// Add all the flags allowed for the run command
	err := addRunFlags()
	if err != nil {
		cmdLogger.Panic("Failed to initialize the run command", err)
	}

	// Add the run command and its associated flags to the root command
	rootCmd.AddCommand(runCmd)
}

// cmdValidRunArgs will return which flags and sub-commands are valid for dynamic completion for the run command
func cmdValidRunArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	// Gather a list of flags that are available to be used in the current command but have not been used yet
	var unusedFlags []string

	// Examine all the flags, and add any flags that have not been set in the current command line
	// to a list of unused flags
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if !flag.Changed || flag.Name == "call" {
			// When adding a flag to a command, include the "--" prefix to indicate that it is a flag
			// and not a positional argument.
			unusedFlags = append(unusedFlags, "--"+flag.Name)
		}
	})
	// Provide a list of flags that can be used in the current command (but have not been used yet)
	// for autocompletion suggestions
	return unusedFlags, cobra.ShellCompDirectiveNoFileComp
}

// cmdValidateRunArgs makes sure that there are no positional arguments provided to the run command
func cmdValidateRunArgs(cmd *cobra.Command, args []string) error {
	// Make sure we have no positional args
	if err := cobra.NoArgs(cmd, args); err != nil {
		err = fmt.Errorf("run does not accept any positional arguments, only flags and their associated values")
		cmdLogger.Error("Failed to validate args to the run command", err)
		return err
	}
	return nil
}

// cmdRunRun executes the CLI run command and navigates through the following possibilities:
// #1: We will search for either a custom config file (via --config) or the default (forkbench.json).
// If we find it, read it. If we can't read it, throw an error.
// #2: If a custom file was provided (--config was used), and we can't find the file, throw an error.
// #3: If forkbench.json can't be found, use the default project configuration.
func cmdRunRun(cmd *cobra.Command, args []string) error {
	projectConfig, err := loadProjectConfig(cmd)
	if err != nil {
		cmdLogger.Error("Failed to run the run command", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}

	// Update the project configuration given whatever flags were set using the CLI
	err = updateProjectConfigWithRunFlags(cmd, projectConfig)
	if err == nil {
		err = projectConfig.Validate()
	}
	if err != nil {
		cmdLogger.Error("Invalid project configuration", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeConfigError)
	}
	calls, err := benchmark.NewCallsFromConfig(projectConfig.Benchmark.Calls)
	if err != nil {
		cmdLogger.Error("Invalid project configuration", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeConfigError)
	}
	rpcUrl, err := projectConfig.Fork.ResolveRpcUrl(os.Getenv)
	if err != nil {
		cmdLogger.Error("Invalid project configuration", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeConfigError)
	}

	closeLogs, err := setupLogging(projectConfig.Logging)
	if err != nil {
		cmdLogger.Error("Failed to set up logging", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}
	defer closeLogs()

	// Stop benchmarking on keyboard interrupts
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Connect to the node and pin the state
	source, err := state.NewRPCSource(ctx, rpcUrl, projectConfig.Fork.PoolSize)
	if err != nil {
		cmdLogger.Error("Failed to connect to the node", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}
	defer source.Close()

	pinned, err := newPinnedStateCache(ctx, source, projectConfig)
	if err != nil {
		cmdLogger.Error("Failed to create the pinned state cache", err)
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}
	defer func() {
		if closeErr := pinned.Close(); closeErr != nil {
			cmdLogger.Warn("Failed to close the state cache", closeErr)
		}
	}()
	cmdLogger.Info("State pinned to block ", colors.Bold, pinned.Block(), colors.Reset)

	// Benchmark the calls
	driver := benchmark.NewDriver(pinned, &projectConfig.Execution, projectConfig.Benchmark.Runs)
	results, runErr := driver.RunAll(ctx, calls)
	for _, result := range results {
		cmdLogger.Info(result.LogBuffer())
	}
	if stats := pinned.Stats(); stats.AccountFailures+stats.StorageFailures > 0 {
		failures := stats.AccountFailures + stats.StorageFailures
		cmdLogger.Warn(colors.Yellow, failures, " remote fetches failed and were substituted with default values", colors.Reset)
	}

	// Write the JSON report for whatever was benchmarked
	if cmd.Flags().Changed("json") {
		jsonPath, err := cmd.Flags().GetString("json")
		if err != nil {
			return err
		}
		if err = writeJSONReport(jsonPath, results); err != nil {
			cmdLogger.Error("Failed to write the JSON report", err)
			return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
		}
	}

	return runErrorWithExitCode(runErr)
}

// loadProjectConfig reads the project configuration from --config or the working directory, falling back to the
// default configuration.
func loadProjectConfig(cmd *cobra.Command) (*config.ProjectConfig, error) {
	// Check to see if --config flag was used and store the value of --config flag
	configFlagUsed := cmd.Flags().Changed("config")
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// If --config was not used, look for `forkbench.json` in the current work directory
	if !configFlagUsed {
		workingDirectory, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(workingDirectory, DefaultProjectConfigFilename)
	}

	// Check to see if the file exists at configPath
	_, existenceError := os.Stat(configPath)

	// Possibility #1: File was found
	if existenceError == nil {
		cmdLogger.Info("Reading the configuration file at: ", colors.Bold, configPath, colors.Reset)
		return config.ReadProjectConfigFromFile(configPath)
	}

	// Possibility #2: If the --config flag was used, and we couldn't find the file, we'll throw an error
	if configFlagUsed {
		return nil, existenceError
	}

	// Possibility #3: --config flag was not used and forkbench.json was not found, so use the default project config
	cmdLogger.Warn(fmt.Sprintf("Unable to find the config file at %v, will use the default project configuration instead", configPath))
	return config.GetDefaultProjectConfig(), nil
}

// setupLogging replaces the global logger with one configured by loggingConfig. The returned function closes the log
// file, if any.
func setupLogging(loggingConfig config.LoggingConfig) (func(), error) {
	if loggingConfig.NoColor {
		colors.DisableColor()
	}
	logging.GlobalLogger = logging.NewLogger(loggingConfig.Level)
	logging.GlobalLogger.AddWriter(os.Stdout, logging.UNSTRUCTURED, !loggingConfig.NoColor)

	if loggingConfig.LogDirectory == "" {
		return func() {}, nil
	}
	logFile, err := utils.CreateFile(loggingConfig.LogDirectory, fmt.Sprintf("forkbench-%d.log", time.Now().Unix()))
	if err != nil {
		return nil, err
	}
	logging.GlobalLogger.AddWriter(logFile, logging.STRUCTURED, false)
	return func() {
		logging.GlobalLogger.RemoveWriter(logFile, logging.STRUCTURED, false)
		logFile.Close()
	}, nil
}

// newPinnedStateCache pins the state of source to the configured block, backed by a persistent store if requested.
func newPinnedStateCache(ctx context.Context, source *state.RPCSource, projectConfig *config.ProjectConfig) (*state.PinnedStateCache, error) {
	policy, err := state.ParseFailurePolicy(projectConfig.Fork.FailurePolicy)
	if err != nil {
		return nil, err
	}
	block, err := state.ResolvePinnedBlock(source, projectConfig.Fork.RpcBlock, projectConfig.Fork.BlockOffset)
	if err != nil {
		return nil, err
	}

	var store cache.StateCache
	if projectConfig.Fork.PersistCache {
		workingDirectory, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		persistent, err := cache.NewPersistentStateCache(ctx, workingDirectory, source.Endpoint(), block)
		if err != nil {
			return nil, err
		}
		cmdLogger.Info("Persisting fetched state to: ", colors.Bold, persistent.Path(), colors.Reset)
		store = persistent
	}

	var failures atomic.Uint64
	return state.NewPinnedStateCache(source, block, store, state.PinnedStateCacheOptions{
		FailurePolicy: policy,
		ErrorReporter: func(err *state.FetchError) {
			// Only the first failure is surfaced on the console, the rest are logged at debug level
			if failures.Add(1) == 1 {
				cmdLogger.Warn("Remote fetch failed: ", err)
			}
		},
	})
}

// writeJSONReport writes results to path, or to stdout if path is "-".
func writeJSONReport(path string, results []*benchmark.Result) error {
	var w io.Writer = os.Stdout
	if path != "-" {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		w = file
	}
	return benchmark.WriteJSONReport(w, results)
}

// runErrorWithExitCode attaches the exit code matching a benchmark failure.
func runErrorWithExitCode(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, state.ErrUnsupportedOperation):
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	case errors.Is(err, chain.ErrCallReverted), errors.Is(err, chain.ErrCallFailed):
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeCallFailed)
	default:
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeHandledError)
	}
}
