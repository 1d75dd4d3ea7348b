package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// supportedShells lists the shells completion scripts can be generated for
var supportedShells = []string{"bash", "zsh", "fish"}

// completionCmd represents the completion command
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish]",
	Short: "Generates a shell completion script for forkbench",
	Long: `Generates a shell completion script for forkbench. Once loaded, the shell completes forkbench's
commands (run, init, version) and the values of flags such as run --call, --failure-policy and --log-level.
Call names are read from forkbench.json in the working directory.`,
	Example: `  # Load completions into the current bash session
  $ source <(forkbench completion bash)

  # Load completions for every bash session (Linux)
  $ forkbench completion bash > /etc/bash_completion.d/forkbench

  # Load completions for every zsh session
  $ forkbench completion zsh > "${fpath[1]}/_forkbench"

  # Load completions for every fish session
  $ forkbench completion fish > ~/.config/fish/completions/forkbench.fish

  # Afterwards, configured call names complete in place
  $ forkbench run --call <TAB>`,
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs:             supportedShells,
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		var err error
		switch args[0] {
		case "bash":
			err = cmd.Root().GenBashCompletionV2(out, true)
		case "zsh":
			err = cmd.Root().GenZshCompletion(out)
		case "fish":
			err = cmd.Root().GenFishCompletion(out, true)
		}
		if err != nil {
			return fmt.Errorf("unable to generate a %s completion script: %w", args[0], err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
