package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	commit = "none"
	date   = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "realtime",
		Short: "Command line client for the realtime pub/sub service",
		Long: `realtime connects to a realtime broker to subscribe to and publish on
channels, and reads channel history through the REST API.

Settings come from flags, then REALTIME_* environment variables, then the
env file (.env by default).

Examples:
  realtime subscribe orders created
  realtime publish orders created '{"id":1}'
  realtime history orders --start=10`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	opts.bind(rootCmd)

	rootCmd.AddCommand(
		subscribeCmd(opts),
		publishCmd(opts),
		channelsCmd(opts),
		historyCmd(opts),
		versionCmd(),
	)

	return rootCmd
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s\n", fmt.Sprintf(format, args...))
}
