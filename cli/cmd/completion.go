package cmd

import (
	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for filterctl.

To load completions:

Bash:
  $ source <(filterctl completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ filterctl completion bash > /etc/bash_completion.d/filterctl
  # macOS:
  $ filterctl completion bash > $(brew --prefix)/etc/bash_completion.d/filterctl

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ filterctl completion zsh > "${fpath[1]}/_filterctl"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ filterctl completion fish | source

  # To load completions for each session, execute once:
  $ filterctl completion fish > ~/.config/fish/completions/filterctl.fish

PowerShell:
  PS> filterctl completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> filterctl completion powershell > filterctl.ps1
  # and source this file from your PowerShell profile.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(out)
		case "zsh":
			return cmd.Root().GenZshCompletion(out)
		case "fish":
			return cmd.Root().GenFishCompletion(out, true)
		default:
			return cmd.Root().GenPowerShellCompletionWithDesc(out)
		}
	},
}
