package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

var cfgFile string

func main() {
	os.Exit(run())
}

// run executes the root command and returns the process exit code.
func run() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "deeppomo",
		Short: "Task trees and focused work sessions",
		Long: `deeppomo tracks hierarchical tasks and timed pomodoro sessions.

Run the HTTP API with "deeppomo serve", or work with the same database
directly from the command line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.deeppomo/config.yaml)")

	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newPurgeCmd(),
		newDoctorCmd(),
		newConfigCmd(),
		newUserCmd(),
		newTaskCmd(),
		newSessionCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show deeppomo version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "deeppomo v%s\n", version)
		},
	}
}
