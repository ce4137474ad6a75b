package main

import (
	"errors"
	"fmt"

	"messenger-sync/event"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	replayCmd.Flags().Bool("dry-run", false, "only count the recorded events")
	rootCmd.AddCommand(replayCmd)
}

var replayCmd = &cobra.Command{
	Use:   "replay [event-log]",
	Short: "Publish events recorded in a JSON lines log to RabbitMQ",
	Long: `replay reads an event log written by the server, either the broker
out-log or the file publisher used when no broker is configured, and
publishes every entry to the configured queue in order.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, log, err := settings(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()

		path := args[0]
		if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
			n, err := event.ReadLog(path, func(event.EventLogData) error { return nil })
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d events\n", n)
			return nil
		}

		if s.RabbitMQHost == "" {
			return errors.New("RABBITMQ_HOST is not set")
		}
		// No out-log: replayed events must not be recorded a second time.
		mq, err := event.RabbitMQConnect(s.RabbitMQURL(), s.EventQueue, "", log.Named("event"))
		if err != nil {
			return err
		}
		defer mq.Close()

		n, err := mq.Replay(cmd.Context(), path)
		log.Info("replay finished", zap.Int("published", n), zap.String("path", path))
		return err
	},
}
