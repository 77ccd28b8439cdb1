package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/log"
)

func newTokenCmd(root *rootOptions) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development token",
		Long: `Mint a token signed with the configured secret. Useful with scripts/ws_chat:

  wirechat-relay token --user alice`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := log.New("warn", "console")
			cfg, _, err := config.Load(logger, root.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			svc := auth.NewService(&auth.JWTConfig{
				Secret:   []byte(cfg.JWTSecret),
				Issuer:   cfg.JWTIssuer,
				Audience: cfg.JWTAudience,
				TTL:      cfg.JWTTTL,
			})
			token, identity, err := svc.Login(cmd.Context(), username)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "user %s (%s)\n", identity.DisplayName, identity.UserID)
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "user", "", "display name to embed in the token")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
