package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/clinic-scheduler/internal/app"
	"github.com/jwalitptl/clinic-scheduler/internal/middleware"
	"github.com/jwalitptl/clinic-scheduler/internal/model"
)

// tokenCmd mints a bearer token signed with the configured secret. It is
// meant for local development and smoke tests.
func tokenCmd() *cobra.Command {
	var (
		businessID string
		userID     string
		role       string
		ttl        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			bid, err := uuid.Parse(businessID)
			if err != nil {
				return fmt.Errorf("invalid --business: %w", err)
			}
			uid, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			r := model.Role(role)
			if !r.IsStaff() {
				return fmt.Errorf("invalid --role %q", role)
			}

			token, err := middleware.NewAuthenticator(cfg.JWT).Sign(uid, bid, r, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&businessID, "business", app.DemoBusinessID.String(), "business id claim")
	cmd.Flags().StringVar(&userID, "user", app.DemoAdminID.String(), "user id (subject)")
	cmd.Flags().StringVar(&role, "role", string(model.RoleAdmin), "staff role")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
