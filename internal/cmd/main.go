// Package cmd implements the mediahub command-line entry point.
package cmd

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mediahub",
	Short: "Build and serve content-addressed packages over a peer-to-peer overlay",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetPrefix("[mediahub] ")
		log.SetFlags(0)
	},
}

// Execute runs the mediahub command line, exiting the process with status 1
// if the chosen subcommand returns an error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
