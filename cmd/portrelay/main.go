// Command portrelay is the CLI entry point: it forwards TCP connections and
// copies files between the local machine, Docker containers, and
// Kubernetes pods, plus supporting ls and shell-completion subcommands.
// Structured after the teacher's cmd/mutagen/main.go.
package main

import (
	"github.com/spf13/cobra"

	"github.com/portrelay/portrelay/cmd"
)

func rootMain(command *cobra.Command, arguments []string) {
	if rootConfiguration.completionBash != "" {
		if err := completeMain(command, []string{rootConfiguration.completionBash}); err != nil {
			cmd.Error(err)
		}
		return
	}
	command.Help()
}

var rootCommand = &cobra.Command{
	Use:   "portrelay",
	Short: "Forward ports and copy files across local, Docker, and Kubernetes targets",
	Run:   rootMain,
}

var rootConfiguration struct {
	help bool
	// completionBash holds the value of the hidden --cb flag: the partial
	// endpoint string to complete. When it is set, the root command writes
	// newline-separated suggestions for it to stdout. No completion
	// environment variable is read.
	completionBash string
}

func init() {
	flags := rootCommand.Flags()
	flags.BoolVarP(&rootConfiguration.help, "help", "h", false, "Show help information")
	flags.StringVar(&rootConfiguration.completionBash, "cb", "", "Generate shell completion suggestions (internal)")
	flags.MarkHidden("cb")

	cobra.EnableCommandSorting = false

	rootCommand.AddCommand(
		forwardCommand,
		copyCommand,
		lsCommand,
		completeCommand,
	)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		cmd.Fatal(err)
	}
}
