package main

import (
	"fmt"

	"github.com/ButyrinIA/blogsync/internal/models"
	"github.com/spf13/cobra"
)

var (
	username string
	email    string
	password string

	registerCmd = &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE:  runRegister,
	}
	loginCmd = &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the token",
		Args:  cobra.NoArgs,
		RunE:  runLogin,
	}
	logoutCmd = &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.store.Session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cli.out, "Signed out")
			return nil
		},
	}
	whoamiCmd = &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			me, err := cli.identity(cmd.Context())
			if err != nil {
				return err
			}
			printIdentity(me)
			return nil
		},
	}
)

func init() {
	registerCmd.Flags().StringVar(&username, "username", "", "display name")
	registerCmd.Flags().StringVar(&email, "email", "", "account email")
	registerCmd.Flags().StringVar(&password, "password", "", "account password")
	loginCmd.Flags().StringVar(&email, "email", "", "account email")
	loginCmd.Flags().StringVar(&password, "password", "", "account password")
}

func runRegister(cmd *cobra.Command, args []string) error {
	user, err := cli.store.Session.Register(cmd.Context(), models.Registration{
		Username: username,
		Email:    email,
		Password: password,
	})
	if err != nil {
		return err
	}
	if cli.store.Session.Token() == "" {
		fmt.Fprintln(cli.out, "Account created, sign in with `blogctl login`")
		return nil
	}
	printIdentity(user)
	return nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	user, err := cli.store.Session.Login(cmd.Context(), models.Credentials{
		Email:    email,
		Password: password,
	})
	if err != nil {
		return err
	}
	printIdentity(user)
	return nil
}

func printIdentity(me *models.Identity) {
	if me == nil {
		return
	}
	fmt.Fprintf(cli.out, "%s <%s> (%s)\n", me.Username, me.Email, me.Role)
}
