package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/clinic-scheduler/internal/config"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:          "clinic-scheduler",
		Short:        "Multi-tenant clinic appointment scheduling API",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ./config.yaml)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(eventsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
