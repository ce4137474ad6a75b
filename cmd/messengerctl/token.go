package main

import (
	"fmt"

	"messenger-sync/database"
	"messenger-sync/model"
	"messenger-sync/store"
	"messenger-sync/utils"

	"github.com/spf13/cobra"
)

func init() {
	tokenCmd.Flags().String("username", "", "username to store, defaults to the id")
	tokenCmd.Flags().String("display-name", "", "display name to store")
	tokenCmd.Flags().Bool("otp", false, "mint a token that still requires second-factor verification")
	rootCmd.AddCommand(tokenCmd)
}

var tokenCmd = &cobra.Command{
	Use:   "token [user-id]",
	Short: "Create or update a user and print an access token for it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, log, err := settings(cmd)
		if err != nil {
			return err
		}
		defer log.Sync()

		db, err := database.Connect(s, log.Named("database"))
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}

		id := args[0]
		username, _ := cmd.Flags().GetString("username")
		if username == "" {
			username = id
		}
		user := &model.User{ID: id, Username: username}
		if name, _ := cmd.Flags().GetString("display-name"); name != "" {
			user.DisplayName = &name
		}
		if err := store.New(db).UpsertUser(cmd.Context(), user); err != nil {
			return err
		}

		otp, _ := cmd.Flags().GetBool("otp")
		tokens, err := utils.GenerateTokens(s, id, otp)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tokens.Access)
		return nil
	},
}
