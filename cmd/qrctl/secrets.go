package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"smartqr/internal/engine/protection"
	"smartqr/internal/platform/auth"
	"smartqr/internal/platform/config"
)

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print the stored hash for a QR code password (reads stdin when no argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("password is required")
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("password is required")
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), protection.HashPassword(password))
			return err
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		email      string
		scopes     []string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a management API access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			token, err := auth.NewTokenService(cfg.JWT).GenerateAccessToken(userID, email, scopes...)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "Path to server config")
	cmd.Flags().StringVar(&userID, "user", "", "User id placed in the token")
	cmd.Flags().StringVar(&email, "email", "", "Optional email claim")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "Scopes to grant")

	return cmd
}
