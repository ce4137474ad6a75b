package main

import (
	"fmt"
	"strings"

	"messenger-sync/client"

	"github.com/spf13/cobra"
)

func init() {
	onlineCmd.Flags().String("server", "http://localhost:8080", "server base URL")
	onlineCmd.Flags().String("token", "", "access token, defaults to $MESSENGER_TOKEN")
	rootCmd.AddCommand(onlineCmd)
}

var onlineCmd = &cobra.Command{
	Use:   "online [user-id]",
	Short: "List online users, or report whether one user is online",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		server, token, err := remote(cmd)
		if err != nil {
			return err
		}
		api := client.NewAPI(server, token)
		out := cmd.OutOrStdout()

		if len(args) == 1 {
			online, err := api.IsOnline(args[0])
			if err != nil {
				return err
			}
			state := "offline"
			if online {
				state = "online"
			}
			fmt.Fprintf(out, "%s is %s\n", args[0], state)
			return nil
		}

		users, err := api.Online()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, strings.Join(users, "\n"))
		return nil
	},
}
