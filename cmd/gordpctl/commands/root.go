// Package commands implements the gordpctl CLI commands.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// outputFormat controls the output format for all commands (table or json).
var outputFormat string

// rootCmd is the top-level cobra command for gordpctl.
var rootCmd = &cobra.Command{
	Use:   "gordpctl",
	Short: "Direct RDP client driver",
	Long:  "gordpctl dials an RDP server directly and drives the connection-phase state machine to completion or failure.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(connectCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
