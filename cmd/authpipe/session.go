package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/studyclub/authpipe"
	"github.com/studyclub/authpipe/jwt"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Exchange credentials for a session and store it",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, release, err := newClient(cfg.clientConfig(), cfg.Session.RedisAddr, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer release()

		if err := client.Logout(cmd.Context()); err != nil {
			if errors.Is(err, authpipe.ErrNoSession) {
				fmt.Fprintln(cmd.OutOrStdout(), "not logged in")
				return nil
			}
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "logged out")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, release, err := newClient(cfg.clientConfig(), cfg.Session.RedisAddr, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer release()

		out := cmd.OutOrStdout()
		sess, ok := client.Session()
		if !ok {
			fmt.Fprintln(out, "not logged in")
			return nil
		}

		fmt.Fprintf(out, "logged in (%s backend)\n", cfg.Session.Backend)
		fmt.Fprintf(out, "access token:  %s\n", mask(sess.AccessToken))
		fmt.Fprintf(out, "refresh token: %s\n", mask(sess.RefreshToken))
		if exp, ok := jwt.ExpiresAt(sess.AccessToken); ok {
			left := time.Until(exp).Round(time.Second)
			if left <= 0 {
				fmt.Fprintf(out, "access expired %s ago\n", -left)
			} else {
				fmt.Fprintf(out, "access expires in %s\n", left)
			}
		}
		if !sess.UpdatedAt.IsZero() {
			fmt.Fprintf(out, "updated at:    %s\n", sess.UpdatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().StringP("username", "u", "", "Username")
	loginCmd.Flags().StringP("password", "p", "", "Password (read from stdin when omitted)")
	_ = loginCmd.MarkFlagRequired("username")

	rootCmd.AddCommand(loginCmd, logoutCmd, statusCmd)
}

func runLogin(cmd *cobra.Command, _ []string) error {
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		fmt.Fprint(cmd.ErrOrStderr(), "password: ")
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	client, release, err := newClient(cfg.clientConfig(), cfg.Session.RedisAddr, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer release()

	if err := client.Login(cmd.Context(), username, password); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", username)
	return nil
}

func mask(token string) string {
	if token == "" {
		return "(none)"
	}
	if len(token) <= 12 {
		return strings.Repeat("*", len(token))
	}
	return token[:6] + "..." + token[len(token)-4:]
}
