package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/lesson-scheduler-api/internal/models"
	"github.com/noah-isme/lesson-scheduler-api/internal/service"
	"github.com/noah-isme/lesson-scheduler-api/pkg/config"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			userRole := models.UserRole(strings.ToUpper(role))
			if !userRole.Valid() {
				return fmt.Errorf("unknown role %q: use viewer, coach or admin", role)
			}
			auth := service.NewAuthService(nil, service.AuthConfig{
				AccessTokenSecret: cfg.JWT.Secret,
				AccessTokenExpiry: ttl,
				Issuer:            cfg.JWT.Issuer,
			})
			token, expiresAt, err := auth.IssueToken(subject, userRole)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Token subject, usually the coach id")
	cmd.Flags().StringVar(&role, "role", string(models.RoleCoach), "viewer, coach or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
