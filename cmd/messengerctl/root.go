package main

import (
	"messenger-sync/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "messengerctl",
	Short: "Tools for the messenger-sync server",
	Long: `messengerctl mints access tokens for local users, replays recorded
events into the broker and runs a terminal chat against a running server.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
}

// settings loads the server configuration from the environment and .env.
func settings(cmd *cobra.Command) (*config.Settings, *zap.Logger, error) {
	s, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		s.LogLevel = "debug"
	}
	s.LogFormat = "console"
	log, err := s.Logger()
	if err != nil {
		return nil, nil, err
	}
	return s, log, nil
}
