package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobboard/api/internal/authpw"
	"jobboard/api/internal/store"
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an admin account unless the username is taken",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := authpw.CreateAdminRequest{}
		req.Username, _ = cmd.Flags().GetString("username")
		req.Email, _ = cmd.Flags().GetString("email")
		req.Password, _ = cmd.Flags().GetString("password")
		req.Role, _ = cmd.Flags().GetString("role")

		rt, err := start(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.close()

		admin, created, err := authpw.NewService(store.NewPostgresStore(rt.db)).CreateAdmin(cmd.Context(), req)
		if err != nil {
			return err
		}
		if !created {
			rt.log.Info("admin already exists", zap.String("username", admin.Username))
			return nil
		}
		rt.log.Info("admin created",
			zap.String("id", admin.ID),
			zap.String("username", admin.Username),
			zap.String("role", admin.Role),
		)
		if req.Password == defaultAdminPassword {
			rt.log.Warn("admin uses the default password; change it after the first login")
		}
		return nil
	},
}

const defaultAdminPassword = "admin123"

func init() {
	rootCmd.AddCommand(createAdminCmd)
	createAdminCmd.Flags().String("username", "admin", "Admin username")
	createAdminCmd.Flags().String("email", "admin@jobmilegi.in", "Admin email")
	createAdminCmd.Flags().String("password", defaultAdminPassword, "Admin password")
	createAdminCmd.Flags().String("role", "super_admin", "editor, admin or super_admin")
}
