package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/clinic-scheduler/internal/app"
	"github.com/jwalitptl/clinic-scheduler/pkg/logger"
)

// eventsCmd prints appointment events published by the outbox relay, one
// JSON document per line.
func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect published appointment events",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "tail",
		Short: "Follow the event channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Redis.Enabled {
				return errors.New("events tail requires redis.enabled")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cmd.ErrOrStderr()})
			broker, err := app.OpenBroker(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("connect redis: %w", err)
			}
			defer broker.Close()

			msgs, err := broker.Subscribe(ctx, cfg.Redis.Channel)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for msg := range msgs {
				if err := enc.Encode(msg); err != nil {
					return err
				}
			}
			return nil
		},
	})
	return cmd
}
