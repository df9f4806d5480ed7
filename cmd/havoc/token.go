package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AlecFritsch/inito/internal/api/middleware"
	"github.com/AlecFritsch/inito/internal/config"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the run API",
	Long: `Sign a bearer token with api.jwt_secret for use against /api/v1/runs.

  curl -H "Authorization: Bearer $(havoc token --subject ci)" localhost:8080/api/v1/runs`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("subject")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if subject == "" {
			return fmt.Errorf("--subject is required")
		}
		if ttl <= 0 {
			return fmt.Errorf("--ttl must be positive")
		}

		cfg, err := config.LoadOrDefault(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration %s: %w", configPath, err)
		}
		if verr := config.ValidateJWTSecret(cfg.API.JWTSecret); verr != nil {
			return verr
		}

		token, err := middleware.IssueToken(cfg.API.JWTSecret, subject, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("subject", "", "token subject recorded as triggered_by on API runs")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
}
