// Package cmd defines the haven command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "haven",
	Short: "Haven - conversation service for the Haven companion app",
	Long: `Haven serves the conversational backend of the Haven mental-health
companion: session management, streamed companion replies over SSE,
and voice synthesis, with rate limiting, circuit breaking and retries
in front of the AI providers.

Run "haven serve" to start the HTTP server.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
