package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/clinic-scheduler/internal/repository/postgres"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closeDB, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closeDB()

			applied, err := m.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closeDB, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closeDB()

			statuses, err := m.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("migrate status: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, s := range statuses {
				state := "pending"
				if s.Applied && s.AppliedAt != nil {
					state = "applied " + s.AppliedAt.UTC().Format("2006-01-02 15:04:05")
				} else if s.Applied {
					state = "applied"
				}
				fmt.Fprintf(out, "%03d  %-40s %s\n", s.Version, s.Name, state)
			}
			return nil
		},
	})

	return cmd
}

func openMigrator(cmd *cobra.Command) (*postgres.Migrator, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Driver != "postgres" {
		return nil, nil, errors.New("migrations require database.driver=postgres")
	}
	db, err := postgres.NewDB(cmd.Context(), cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return postgres.NewMigrator(db), func() { db.Close() }, nil
}
