package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	var (
		email      string
		password   string
		rememberMe bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and keep the session for later commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				p, err := a.readSecret(cmd.ErrOrStderr(), "Password: ")
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				password = p
			}
			if err := a.api.Login(cmd.Context(), email, password, rememberMe); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", email)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when empty)")
	cmd.Flags().BoolVar(&rememberMe, "remember-me", false, "keep the session for longer")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.api.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := a.api.Me(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> %s\n", u.Username, u.Email, u.Role)
			return nil
		},
	}
}

func newRegisterCmd(a *app) *cobra.Command {
	var email, username, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a member account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				p, err := a.readSecret(cmd.ErrOrStderr(), "Choose a password: ")
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				password = p
			}
			u, err := a.api.Register(cmd.Context(), email, username, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (%s). Log in with `lendctl login -e %s`.\n", u.Username, u.ID, u.Email)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&username, "username", "u", "", "display name")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when empty)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newProfileCmd(a *app) *cobra.Command {
	var username, email string
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Change the username or email of the logged-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username == "" && email == "" {
				return errors.New("nothing to change: pass --username and/or --email")
			}
			u, err := a.api.UpdateProfile(cmd.Context(), username, email)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> %s\n", u.Username, u.Email, u.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "new display name")
	cmd.Flags().StringVarP(&email, "email", "e", "", "new email")
	return cmd
}

func newPasswdCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the password and sign out every other session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			current, err := a.readSecret(cmd.ErrOrStderr(), "Current password: ")
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			next, err := a.readSecret(cmd.ErrOrStderr(), "New password: ")
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			again, err := a.readSecret(cmd.ErrOrStderr(), "Repeat new password: ")
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			if next != again {
				return errors.New("passwords do not match")
			}

			revoked, err := a.api.ChangePassword(cmd.Context(), current, next)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Password changed; %d other session(s) signed out\n", revoked)
			return nil
		},
	}
}
