package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	authCmd := &cobra.Command{Use: "auth", Short: "Account and token operations"}

	var username, email, password string
	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := checkResp(newClient().R().
				SetBody(map[string]string{"username": username, "email": email, "password": password}).
				Post("/api/register"))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	registerCmd.Flags().StringVarP(&username, "username", "u", "", "Username (required)")
	registerCmd.Flags().StringVarP(&email, "email", "e", "", "Email (required)")
	registerCmd.Flags().StringVarP(&password, "password", "p", "", "Password (required)")
	_ = registerCmd.MarkFlagRequired("username")
	_ = registerCmd.MarkFlagRequired("email")
	_ = registerCmd.MarkFlagRequired("password")
	authCmd.AddCommand(registerCmd)

	var loginUser, loginPass string
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange credentials for an access/refresh token pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := checkResp(newClient().R().
				SetBody(map[string]string{"username": loginUser, "password": loginPass}).
				Post("/api/token"))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	loginCmd.Flags().StringVarP(&loginUser, "username", "u", "", "Username (required)")
	loginCmd.Flags().StringVarP(&loginPass, "password", "p", "", "Password (required)")
	_ = loginCmd.MarkFlagRequired("username")
	_ = loginCmd.MarkFlagRequired("password")
	authCmd.AddCommand(loginCmd)

	refreshCmd := &cobra.Command{
		Use:   "refresh REFRESH_TOKEN",
		Short: "Exchange a refresh token for a new access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := checkResp(newClient().R().
				SetBody(map[string]string{"refresh": args[0]}).
				Post("/api/token/refresh"))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	authCmd.AddCommand(refreshCmd)

	rootCmd.AddCommand(authCmd)
}
