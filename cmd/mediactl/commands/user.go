package commands

import (
	"fmt"

	"bitwise74/media-api/internal/model"
	"bitwise74/media-api/internal/service"

	"github.com/spf13/cobra"
)

var (
	userPassword string
	userRole     string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add <email>",
	Short: "Create an account",
	Long: `Creates an account that can log in through POST /api/users/login.

Examples:
  mediactl user add admin@example.com --password 'hunter22hunter22' --role administrator`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := service.CreateUser(cmd.Context(), deps.DB, deps.Argon, args[0], userPassword, model.Role(userRole))
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) with id %s\n", u.Email, u.Role, u.ID)
		return nil
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userPassword, "password", "", "account password")
	userAddCmd.Flags().StringVar(&userRole, "role", string(model.RoleAuthor), "administrator|editor|author|contributor|subscriber")
	_ = userAddCmd.MarkFlagRequired("password")

	userCmd.AddCommand(userAddCmd)
}
