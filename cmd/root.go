package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the calsync application
var rootCmd = &cobra.Command{
	Use:   "calsync",
	Short: "Synchronizes practice appointments with external calendars",
	Long: `calsync keeps a practitioner's appointment book and their external
calendar account in sync, in both directions.

It can run as:
  - A one-shot sync pass over all enabled accounts (sync)
  - A long-running service with a periodic scheduler and a control API (serve)`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "calsync version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}
