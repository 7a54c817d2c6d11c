// Command bot runs the wager queue bot.
//
// this binary:
//  1. loads config from environment variables (.env during dev)
//  2. restores the snapshot (local files, optional mirror)
//  3. creates a discord session and registers the app handlers
//  4. waits for a signal from the OS to exit
//
// `bot snapshot` inspects the stored state without connecting to Discord.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	LogLevel string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	run := newRunCommand(opts)

	cmd := &cobra.Command{
		Use:           "bot",
		Short:         "Discord wager queue bot",
		SilenceUsage:  true,
		SilenceErrors: true,
		// no subcommand = run
		RunE: run.RunE,
	}
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override LOG_LEVEL (debug|info|warn|error)")

	cmd.AddCommand(run)
	cmd.AddCommand(newSnapshotCommand(opts))
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
