package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "taskdock",
	Short:   "Taskdock - sync engine for external task integrations",
	Version: Version,
	Long: `Taskdock mirrors issues and tasks from external services (GitHub,
Google Tasks) into a local task database, keeping them fresh with
periodic reconciliation passes.

Typical workflow:
  taskdock init                  # create the config directory
  taskdock account add           # connect a service account
  taskdock sync                  # run one reconciliation pass
  taskdock daemon                # keep syncing in the background`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the taskdock version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("taskdock %s\n", Version)
	},
}

func main() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddGroup(
		&cobra.Group{ID: "setup", Title: "Setup Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "tasks", Title: "Task Commands:"},
	)
	rootCmd.PersistentFlags().String("dir", "", "Config directory (default: $XDG_CONFIG_HOME/taskdock)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
