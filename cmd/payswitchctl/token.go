package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/payswitch-backend/pkg/auth"
	"github.com/angelmondragon/payswitch-backend/pkg/config"
	"github.com/angelmondragon/payswitch-backend/pkg/enums"
)

func tokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			token, err := mintToken(cfg.JWT, subject, role, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "operator identity carried in the token")
	cmd.Flags().StringVar(&role, "role", string(enums.AdminRoleViewer), "operator or viewer")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "override the configured token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func mintToken(cfg config.JWTConfig, subject, role string, ttl time.Duration, now time.Time) (string, error) {
	parsed, err := enums.ParseAdminRole(role)
	if err != nil {
		return "", err
	}
	if ttl > 0 {
		cfg.ExpirationMinutes = int(ttl / time.Minute)
		if cfg.ExpirationMinutes == 0 {
			return "", fmt.Errorf("ttl must be at least one minute")
		}
	}
	return auth.MintAdminToken(cfg, now, auth.AdminTokenPayload{
		Subject: subject,
		Role:    parsed,
		JTI:     uuid.NewString(),
	})
}
